package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/momentics/corefiber/fiber"
)

func TestReactorPostFIFOWithinNiceLevel(t *testing.T) {
	r := NewLoop(0)
	go r.Run()
	defer r.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		i := i
		r.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order 0,1,2; got %v", order)
		}
	}
}

func TestReactorNiceLevelOrdersBelowDefault(t *testing.T) {
	r := NewLoop(0)
	go r.Run()
	defer r.Stop()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	// Post the background task first; it should still run after the
	// default-nice task posted second, since it sorts into a later lane.
	r.PostNice(fiber.BackgroundNice, func() {
		mu.Lock()
		order = append(order, "background")
		mu.Unlock()
	})
	r.PostNice(fiber.DefaultNice, func() {
		mu.Lock()
		order = append(order, "default")
		mu.Unlock()
		close(done)
	})

	<-done
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "default" || order[1] != "background" {
		t.Fatalf("expected [default background], got %v", order)
	}
}

func TestReactorContextIsolation(t *testing.T) {
	r := NewLoop(0)
	go r.Run()
	defer r.Stop()

	done := make(chan struct{})
	r.Post(func() {
		r.Context().Set("seen", true)
		close(done)
	})
	<-done

	var v any
	var ok bool
	done2 := make(chan struct{})
	r.Post(func() {
		v, ok = r.Context().Get("seen")
		close(done2)
	})
	<-done2

	if !ok || v != true {
		t.Fatalf("expected context value to persist across posted closures")
	}
}

func TestReactorStopDrainsPending(t *testing.T) {
	r := NewLoop(0)
	go r.Run()

	var ran int32 = 0
	var mu sync.Mutex
	r.Post(func() {
		mu.Lock()
		ran++
		mu.Unlock()
	})
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	if ran != 1 {
		t.Fatalf("expected queued task to run before Stop returns, ran=%d", ran)
	}
}

func TestPoolRoundRobin(t *testing.T) {
	p := NewPool(3, nil)
	p.Start()
	defer p.Stop()

	ids := []int{p.Next().ID(), p.Next().ID(), p.Next().ID(), p.Next().ID()}
	if ids[0] != 0 || ids[1] != 1 || ids[2] != 2 || ids[3] != 0 {
		t.Fatalf("expected round robin 0,1,2,0; got %v", ids)
	}
}

func TestPoolAwaitOnAll(t *testing.T) {
	p := NewPool(4, nil)
	p.Start()
	defer p.Stop()

	var mu sync.Mutex
	seen := map[int]bool{}
	p.AwaitOnAll(func(r *Reactor) {
		mu.Lock()
		seen[r.ID()] = true
		mu.Unlock()
	})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 4 {
		t.Fatalf("expected all 4 reactors visited, got %d", len(seen))
	}
}
