// Command osocks is the server daemon: it terminates the inner
// protocol's handshake, asynchronously resolves the requested
// destination, dials it, and relays encrypted bytes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paulGUZU/isotun/internal/server"
	"github.com/paulGUZU/isotun/pkg/banner"
	"github.com/paulGUZU/isotun/pkg/config"
)

const usage = `osocks - encrypted SOCKS5 tunnel server

Usage:
  osocks [-c config.yaml] [-b addr] [-l port] [-k key]

Flags:
  -h, --help   print this help and exit
  -c <path>    load configuration from path
  -s <addr>    accepted for CLI parity with isocks; osocks has no upstream to dial
  -p <port>    accepted for CLI parity with isocks; osocks has no upstream to dial
  -b <addr>    local bind address (default 0.0.0.0)
  -l <port>    local bind port (default 1205)
  -k <key>     pre-shared key
`

const (
	exitOK = iota
	exitBadArgs
	exitSocketSetup
	_ // exitAllocatorInit: no fixed-block allocator in this port, see DESIGN.md
	_ // exitSignalSetup: os/signal.Notify cannot fail the way sigaction(2) can
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("osocks", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	help := fs.Bool("h", false, "print help and exit")
	helpLong := fs.Bool("help", false, "print help and exit")
	configPath := fs.String("c", "", "config file path")
	_ = fs.String("s", "", "accepted for CLI parity; unused")
	_ = fs.Int("p", 0, "accepted for CLI parity; unused")
	bindAddr := fs.String("b", "", "local bind address")
	bindPort := fs.Int("l", 0, "local bind port")
	psk := fs.String("k", "", "pre-shared key")

	if err := fs.Parse(args); err != nil {
		return exitBadArgs
	}
	if *help || *helpLong {
		fmt.Print(usage)
		return exitOK
	}

	cfg := &config.Config{IdleTimeout: config.DefaultIdleTimeout}
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Printf("osocks: %v", err)
			return exitBadArgs
		}
		cfg = loaded
	}

	if cfg.LocalAddr == "" {
		cfg.LocalAddr = "0.0.0.0"
	}
	if cfg.LocalPort == 0 {
		cfg.LocalPort = 1205
	}
	cfg.ApplyLocalFlags(*bindAddr, *bindPort)
	if *psk != "" {
		cfg.PSK = *psk
	}
	if cfg.PSK == "" {
		log.Printf("osocks: no pre-shared key configured (use -c or -k)")
		return exitBadArgs
	}

	handler := server.NewHandler(cfg.PSK, cfg.IdleTimeout)
	listener := server.NewListener(cfg.LocalListenAddr(), handler)

	if err := listener.Start(); err != nil {
		log.Printf("osocks: %v", err)
		return exitSocketSetup
	}

	banner.Print("SERVER")
	banner.PrintServerStatus(cfg.LocalListenAddr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := listener.Stop(shutdownCtx); err != nil {
		log.Printf("osocks: shutdown: %v", err)
	}
	return exitOK
}
