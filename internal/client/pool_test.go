package client

import (
	"testing"

	"github.com/paulGUZU/isotun/pkg/config"
)

func TestNewServerPoolRejectsEmpty(t *testing.T) {
	if _, err := NewServerPool(nil); err == nil {
		t.Error("expected an error constructing a pool with no servers")
	}
}

func TestServerPoolPickOnlyReturnsConfigured(t *testing.T) {
	servers := []config.ServerEntry{
		{Addr: "198.51.100.1:1205", PSK: "a"},
		{Addr: "198.51.100.2:1205", PSK: "b"},
		{Addr: "198.51.100.3:1205", PSK: "c"},
	}
	pool, err := NewServerPool(servers)
	if err != nil {
		t.Fatalf("NewServerPool: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		entry, err := pool.Pick()
		if err != nil {
			t.Fatalf("Pick: %v", err)
		}
		found := false
		for _, s := range servers {
			if s.Addr == entry.Addr {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("Pick returned %q which isn't in the configured list", entry.Addr)
		}
		seen[entry.Addr] = true
	}

	if len(seen) != len(servers) {
		t.Errorf("distribution over 200 picks only hit %d of %d servers", len(seen), len(servers))
	}
}

func TestServerPoolLen(t *testing.T) {
	servers := []config.ServerEntry{{Addr: "198.51.100.1:1205", PSK: "a"}}
	pool, err := NewServerPool(servers)
	if err != nil {
		t.Fatalf("NewServerPool: %v", err)
	}
	if pool.Len() != 1 {
		t.Errorf("Len() = %d, want 1", pool.Len())
	}
}
