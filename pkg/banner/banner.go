package banner

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

func Print(role string) {
	art := `
██╗███████╗ ██████╗ ████████╗██╗   ██╗███╗   ██╗
██║██╔════╝██╔═══██╗╚══██╔══╝██║   ██║████╗  ██║
██║███████╗██║   ██║   ██║   ██║   ██║██╔██╗ ██║
██║╚════██║██║   ██║   ██║   ██║   ██║██║╚██╗██║
██║███████║╚██████╔╝   ██║   ╚██████╔╝██║ ╚████║
╚═╝╚══════╝ ╚═════╝    ╚═╝    ╚═════╝ ╚═╝  ╚═══╝
`
	c := color.New(color.FgCyan, color.Bold)
	c.Println(art)

	fmt.Printf("   %s :: Encrypted SOCKS5 Tunnel\n", role)
	fmt.Printf("   Start Time: %s\n", time.Now().Format(time.RFC1123))
	fmt.Println(strings.Repeat("-", 50))
}

// PrintClientStatus reports isocks's bind address and how many
// upstream osocks servers it will load-balance across.
func PrintClientStatus(listenAddr string, serverCount int) {
	color.Green("✓ isocks started")
	fmt.Printf("   • Mode:        Client\n")
	fmt.Printf("   • Listening:   %s (SOCKS5)\n", listenAddr)
	fmt.Printf("   • Upstreams:   %d configured\n", serverCount)
	fmt.Println(strings.Repeat("-", 50))
}

// PrintServerStatus reports osocks's inner-protocol bind address.
func PrintServerStatus(listenAddr string) {
	color.Green("✓ osocks started")
	fmt.Printf("   • Mode:        Server\n")
	fmt.Printf("   • Listening:   %s\n", listenAddr)
	fmt.Println(strings.Repeat("-", 50))
}
