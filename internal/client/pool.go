package client

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/paulGUZU/isotun/pkg/config"
)

// ServerPool holds the upstream osocks endpoints isocks load-balances
// across. Selection is uniform random over the configured list,
// independent of health or observed latency.
type ServerPool struct {
	mu      sync.RWMutex
	servers []config.ServerEntry
}

// errNoServers is returned by Pick when the pool is empty.
var errNoServers = fmt.Errorf("client: no upstream servers configured")

// NewServerPool builds a pool from the configured server list. At least
// one entry is required.
func NewServerPool(servers []config.ServerEntry) (*ServerPool, error) {
	if len(servers) == 0 {
		return nil, errNoServers
	}
	cp := make([]config.ServerEntry, len(servers))
	copy(cp, servers)
	return &ServerPool{servers: cp}, nil
}

// Pick returns one server entry chosen uniformly at random.
func (p *ServerPool) Pick() (config.ServerEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.servers) == 0 {
		return config.ServerEntry{}, errNoServers
	}
	if len(p.servers) == 1 {
		return p.servers[0], nil
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.servers))))
	if err != nil {
		return p.servers[0], nil
	}
	return p.servers[n.Int64()], nil
}

// Len reports how many servers are in the pool.
func (p *ServerPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.servers)
}
