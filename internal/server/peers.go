package server

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PeerInfo describes a client that has sent at least one valid request
type PeerInfo struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Requests  uint64    `json:"requests"`
}

type peerEntry struct {
	info PeerInfo
	addr net.Addr
}

// PeerRegistry tracks known peers keyed by address. It admits at most
// maxHosts peers at a time.
type PeerRegistry struct {
	peers    map[string]*peerEntry
	maxHosts int
	mu       sync.RWMutex
}

// NewPeerRegistry creates an empty registry admitting up to maxHosts peers
func NewPeerRegistry(maxHosts int) *PeerRegistry {
	return &PeerRegistry{
		peers:    make(map[string]*peerEntry),
		maxHosts: maxHosts,
	}
}

// Touch records activity from addr, registering it if it is new. It returns
// false when addr is unknown and the registry is full.
func (r *PeerRegistry) Touch(addr net.Addr, now time.Time) (PeerInfo, bool) {
	key := addr.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.peers[key]; exists {
		entry.info.LastSeen = now
		entry.info.Requests++
		return entry.info, true
	}

	if len(r.peers) >= r.maxHosts {
		return PeerInfo{}, false
	}

	entry := &peerEntry{
		info: PeerInfo{
			ID:        uuid.NewString(),
			Address:   key,
			FirstSeen: now,
			LastSeen:  now,
			Requests:  1,
		},
		addr: addr,
	}
	r.peers[key] = entry

	return entry.info, true
}

// Get returns the peer registered under address
func (r *PeerRegistry) Get(address string) (PeerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.peers[address]
	if !exists {
		return PeerInfo{}, false
	}
	return entry.info, true
}

// Remove forgets the peer registered under address
func (r *PeerRegistry) Remove(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[address]; !exists {
		return false
	}
	delete(r.peers, address)
	return true
}

// List returns a snapshot of all peers ordered by first activity
func (r *PeerRegistry) List() []PeerInfo {
	r.mu.RLock()
	peers := make([]PeerInfo, 0, len(r.peers))
	for _, entry := range r.peers {
		peers = append(peers, entry.info)
	}
	r.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool {
		if peers[i].FirstSeen.Equal(peers[j].FirstSeen) {
			return peers[i].Address < peers[j].Address
		}
		return peers[i].FirstSeen.Before(peers[j].FirstSeen)
	})
	return peers
}

// Addrs returns the network addresses of all peers
func (r *PeerRegistry) Addrs() []net.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addrs := make([]net.Addr, 0, len(r.peers))
	for _, entry := range r.peers {
		addrs = append(addrs, entry.addr)
	}
	return addrs
}

// Count returns the number of registered peers
func (r *PeerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// EvictIdle removes peers whose last activity is older than timeout and
// returns them
func (r *PeerRegistry) EvictIdle(timeout time.Duration, now time.Time) []PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []PeerInfo
	for key, entry := range r.peers {
		if now.Sub(entry.info.LastSeen) > timeout {
			evicted = append(evicted, entry.info)
			delete(r.peers, key)
		}
	}
	return evicted
}
