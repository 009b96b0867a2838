// Command isocks is the client daemon: it exposes a SOCKS5 ingress to
// local applications and tunnels each connection to a randomly chosen
// upstream osocks server.
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

	"github.com/paulGUZU/isotun/internal/client"
	"github.com/paulGUZU/isotun/pkg/banner"
	"github.com/paulGUZU/isotun/pkg/config"
)

const usage = `isocks - encrypted SOCKS5 tunnel client

Usage:
  isocks [-c config.yaml] [-s addr -p port -k key] [-b addr] [-l port]

Flags:
  -h, --help   print this help and exit
  -c <path>    load configuration from path
  -s <addr>    single-server mode: upstream osocks address
  -p <port>    single-server mode: upstream osocks port (default 1205)
  -b <addr>    local SOCKS5 bind address (default 127.0.0.1)
  -l <port>    local SOCKS5 bind port (default 1080)
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
	fs := flag.NewFlagSet("isocks", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	help := fs.Bool("h", false, "print help and exit")
	helpLong := fs.Bool("help", false, "print help and exit")
	configPath := fs.String("c", "", "config file path")
	serverAddr := fs.String("s", "", "single-server mode: upstream address")
	serverPort := fs.Int("p", 0, "single-server mode: upstream port")
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
			log.Printf("isocks: %v", err)
			return exitBadArgs
		}
		cfg = loaded
	}

	if err := cfg.ApplySingleServer(*serverAddr, *serverPort, *psk); err != nil {
		log.Printf("isocks: %v", err)
		return exitBadArgs
	}
	if cfg.LocalAddr == "" {
		cfg.LocalAddr = "127.0.0.1"
	}
	if cfg.LocalPort == 0 {
		cfg.LocalPort = 1080
	}
	cfg.ApplyLocalFlags(*bindAddr, *bindPort)

	if len(cfg.Servers) == 0 {
		log.Printf("isocks: no upstream servers configured (use -c, or -s/-p/-k)")
		return exitBadArgs
	}

	pool, err := client.NewServerPool(cfg.Servers)
	if err != nil {
		log.Printf("isocks: %v", err)
		return exitBadArgs
	}

	transport := client.NewTransport(pool, cfg.PSK, cfg.IdleTimeout)
	listener := client.NewListener(cfg.LocalListenAddr(), transport)

	if err := listener.Start(); err != nil {
		log.Printf("isocks: %v", err)
		return exitSocketSetup
	}

	banner.Print("CLIENT")
	banner.PrintClientStatus(cfg.LocalListenAddr(), len(cfg.Servers))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := listener.Stop(shutdownCtx); err != nil {
		log.Printf("isocks: shutdown: %v", err)
	}
	return exitOK
}
