// Package timeouts defines shared timeout constants used across the capture
// subsystem. Centralizing these values prevents drift between components and
// makes the durations discoverable.
package timeouts

import "time"

// RemoteCall caps the time allowed for a single remote API call. A call that
// exceeds it is classified as a network failure and routed to the sync queue.
const RemoteCall = 10 * time.Second

// Probe caps the wait time for one connectivity probe.
const Probe = 3 * time.Second

// StorageShutdown caps the wait when flushing local stores at shutdown.
const StorageShutdown = 5 * time.Second
