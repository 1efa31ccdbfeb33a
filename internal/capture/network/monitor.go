// Package network tracks connectivity for the capture subsystem. A Monitor
// holds one cached online flag fed by a polling watch loop and exposes an
// on-demand authoritative probe for decisions that must not trust a stale
// flag.
package network

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/openfield/fieldsync/internal/platform/timeouts"
)

// Prober performs one authoritative connectivity check.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) bool

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context) bool {
	return f(ctx)
}

// DialProber probes connectivity by opening one TCP connection to a known
// address.
type DialProber struct {
	Address string
}

// Probe implements Prober.
func (p DialProber) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Probe)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Monitor caches the last known connectivity state and notifies listeners on
// true connected/disconnected transitions only. Until the first probe the
// monitor reports offline.
type Monitor struct {
	prober Prober

	mu        sync.Mutex
	online    bool
	listeners map[int]func(online bool)
	nextID    int
}

// NewMonitor creates a monitor backed by the given prober. A nil prober
// defaults to dialing addr.
func NewMonitor(prober Prober, addr string) *Monitor {
	if prober == nil {
		prober = DialProber{Address: addr}
	}
	return &Monitor{
		prober:    prober,
		listeners: make(map[int]func(online bool)),
	}
}

// Check runs one authoritative probe, updates the cached flag, and returns
// the fresh result. Callers branch on Check, not Status, before any
// operation whose correctness depends on an accurate online/offline split.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.prober.Probe(ctx)
	m.setOnline(online)
	return online
}

// Status returns the last known connectivity without probing. It can be
// stale between probes.
func (m *Monitor) Status() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// AddListener registers a transition callback and returns its unsubscribe
// function. Listeners fire only when the online flag actually flips.
func (m *Monitor) AddListener(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Watch polls connectivity at the given interval until ctx is done. It is
// the Go rendering of a platform connectivity subscription: the cached flag
// and listener notifications are fed from here.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	notify := make([]func(online bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		notify = append(notify, fn)
	}
	m.mu.Unlock()

	for _, fn := range notify {
		fn(online)
	}
}
