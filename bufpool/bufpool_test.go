package bufpool

import "testing"

func TestGetReturnsConfiguredSize(t *testing.T) {
	p := New(128)
	buf := p.Get()
	if len(buf) != 128 {
		t.Fatalf("expected buffer of length 128, got %d", len(buf))
	}
}

func TestPutRecyclesBuffer(t *testing.T) {
	p := New(64)
	buf := p.Get()
	buf[0] = 0xAB
	p.Put(buf)

	got := p.Get()
	if len(got) != 64 {
		t.Fatalf("expected recycled buffer of length 64, got %d", len(got))
	}
}

func TestPutDiscardsWrongSizedBuffer(t *testing.T) {
	p := New(32)
	wrong := make([]byte, 16)
	p.Put(wrong) // must not panic
}
