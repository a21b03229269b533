// Command corefiberd wires a reactor.Pool and an acceptserver.Server into a
// runnable echo service, configured via flags, environment, and an
// optional config file through pflag and viper.
//
// Grounded on examples/reactor_echo/main.go for the flag-and-run shape of
// the teacher's own example binaries, replacing its bare net.Listen loop
// with the full reactor/acceptserver stack.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/momentics/corefiber/acceptserver"
	"github.com/momentics/corefiber/bufpool"
	"github.com/momentics/corefiber/config"
	"github.com/momentics/corefiber/corelog"
	"github.com/momentics/corefiber/reactor"
)

// echoBufPool backs echoHandler's read buffer, avoiding a fresh
// allocation per accepted connection.
var echoBufPool = bufpool.New(4096)

func main() {
	pflag.String("listen", ":9090", "address to listen on")
	pflag.Int("pool-size", 4, "number of reactors in the pool")
	pflag.String("config", "", "optional config file (yaml/json/toml)")
	pflag.Parse()

	v := viper.New()
	v.SetEnvPrefix("COREFIBER")
	v.AutomaticEnv()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		fmt.Fprintf(os.Stderr, "corefiberd: bind flags: %v\n", err)
		os.Exit(1)
	}
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "corefiberd: read config: %v\n", err)
			os.Exit(1)
		}
	}

	store := config.New()
	store.Set(map[string]any{
		config.KeyReactorPoolSize:    v.GetInt("pool-size"),
		config.KeyAcceptServerListen: v.GetString("listen"),
	})

	log := corelog.NewDefault()

	poolSize := store.ReactorPoolSize(4)
	pool := reactor.NewPool(poolSize, nil)
	pool.Start()
	defer pool.Stop()

	listenAddr := store.AcceptServerListen(":9090")
	srv, err := acceptserver.New(pool, listenAddr, func() acceptserver.Handler {
		return acceptserver.HandlerFunc(echoHandler)
	}, acceptserver.WithLogger(log), acceptserver.WithReadinessPoller())
	if err != nil {
		fmt.Fprintf(os.Stderr, "corefiberd: listen: %v\n", err)
		os.Exit(1)
	}
	srv.Run()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	srv.Shutdown()
	srv.Wait()
}

// echoHandler is the S1-scenario handler: echo every byte back to the
// client until it disconnects, using a pooled read buffer.
func echoHandler(ctx context.Context, conn net.Conn) {
	buf := echoBufPool.Get()
	defer echoBufPool.Put(buf)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
