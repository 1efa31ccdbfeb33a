package syncqueue

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/openfield/fieldsync/internal/capture/remote"
	"github.com/openfield/fieldsync/internal/capture/storage"
	"github.com/openfield/fieldsync/internal/capture/telemetry"
)

// Replayer applies one queued operation against the remote backend.
type Replayer interface {
	Replay(ctx context.Context, op storage.QueuedOperation) error
}

// ReplayerFunc adapts a function to the Replayer interface.
type ReplayerFunc func(ctx context.Context, op storage.QueuedOperation) error

// Replay calls f.
func (f ReplayerFunc) Replay(ctx context.Context, op storage.QueuedOperation) error {
	return f(ctx, op)
}

// DrainConfig tunes the background drain loop.
type DrainConfig struct {
	// PollInterval is how often the loop checks for due entries.
	PollInterval time.Duration
	// BatchSize bounds entries drained per pass.
	BatchSize int
	// MaxAttempts is the replay count after which an entry is parked
	// as dead instead of rescheduled.
	MaxAttempts int
	// RetryBackoff is the base delay before the first retry; later
	// retries back off exponentially up to RetryMaxDelay.
	RetryBackoff time.Duration
	// RetryMaxDelay caps the exponential retry delay.
	RetryMaxDelay time.Duration
}

// DefaultDrainConfig returns the drain tuning used by the runtime.
func DefaultDrainConfig() DrainConfig {
	return DrainConfig{
		PollInterval:  30 * time.Second,
		BatchSize:     25,
		MaxAttempts:   8,
		RetryBackoff:  5 * time.Second,
		RetryMaxDelay: 10 * time.Minute,
	}
}

// Drainer replays due queue entries whenever connectivity is available.
type Drainer struct {
	store    storage.QueueStore
	replayer Replayer
	online   func(ctx context.Context) bool
	emitter  *telemetry.Emitter
	cfg      DrainConfig
	clock    func() time.Time
}

// NewDrainer wires a drainer over the queue store. The online func is
// consulted before each pass; a nil func means always online.
func NewDrainer(store storage.QueueStore, replayer Replayer, online func(ctx context.Context) bool, emitter *telemetry.Emitter, cfg DrainConfig) *Drainer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultDrainConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultDrainConfig().BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultDrainConfig().MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultDrainConfig().RetryBackoff
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = DefaultDrainConfig().RetryMaxDelay
	}
	return &Drainer{
		store:    store,
		replayer: replayer,
		online:   online,
		emitter:  emitter,
		cfg:      cfg,
		clock:    time.Now,
	}
}

// Run polls for due entries until the context is canceled.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.DrainOnce(ctx); err != nil {
				log.Printf("syncqueue: drain pass: %v", err)
			}
		}
	}
}

// DrainOnce replays one batch of due entries and reports how many were
// acked. Entries that fail with a network error are rescheduled;
// conflicts count as success; validation and server rejections, plus
// entries out of attempts, are parked dead.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	if d.online != nil && !d.online(ctx) {
		return 0, nil
	}
	ops, err := d.store.DueOperations(ctx, d.clock().UTC(), d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	acked := 0
	for _, op := range ops {
		if ctx.Err() != nil {
			return acked, ctx.Err()
		}
		if d.replayOne(ctx, op) {
			acked++
		}
	}
	return acked, nil
}

func (d *Drainer) replayOne(ctx context.Context, op storage.QueuedOperation) bool {
	err := d.replayer.Replay(ctx, op)
	switch {
	case err == nil:
		d.ack(ctx, op, telemetry.KindOperationReplayed, "")
		return true
	case remote.IsConflict(err):
		// The mutation already landed remotely; treat as applied.
		d.ack(ctx, op, telemetry.KindOperationConflict, err.Error())
		return true
	case !remote.IsNetwork(err):
		// Validation and server rejections will not heal on retry;
		// park the entry dead instead of burning attempts.
		if markErr := d.store.MarkOperationDead(ctx, op.ID, err.Error()); markErr != nil {
			log.Printf("syncqueue: mark dead %s/%s: %v", op.Namespace, op.ID, markErr)
			return false
		}
		log.Printf("syncqueue: %s/%s rejected, parked dead: %v", op.Namespace, op.ID, err)
		d.emit(ctx, telemetry.KindOperationDead, op, err.Error())
		return false
	}

	attempt := op.AttemptCount + 1
	if attempt >= d.cfg.MaxAttempts {
		if markErr := d.store.MarkOperationDead(ctx, op.ID, err.Error()); markErr != nil {
			log.Printf("syncqueue: mark dead %s/%s: %v", op.Namespace, op.ID, markErr)
			return false
		}
		log.Printf("syncqueue: %s/%s dead after %d attempts: %v", op.Namespace, op.ID, attempt, err)
		d.emit(ctx, telemetry.KindOperationDead, op, err.Error())
		return false
	}

	next := d.clock().UTC().Add(d.retryDelay(attempt))
	if resErr := d.store.RescheduleOperation(ctx, op.ID, attempt, next, err.Error()); resErr != nil {
		log.Printf("syncqueue: reschedule %s/%s: %v", op.Namespace, op.ID, resErr)
	}
	return false
}

func (d *Drainer) ack(ctx context.Context, op storage.QueuedOperation, kind, detail string) {
	if err := d.store.AckOperation(ctx, op.ID); err != nil {
		log.Printf("syncqueue: ack %s/%s: %v", op.Namespace, op.ID, err)
		return
	}
	d.emit(ctx, kind, op, detail)
}

func (d *Drainer) emit(ctx context.Context, kind string, op storage.QueuedOperation, detail string) {
	if err := d.emitter.Emit(ctx, storage.Event{
		Kind:    kind,
		Subject: op.Namespace + "/" + op.IdempotencyKey,
		Detail:  detail,
	}); err != nil {
		log.Printf("syncqueue: emit %s: %v", kind, err)
	}
}

// retryDelay is the deterministic exponential delay before the given
// attempt number (1-based).
func (d *Drainer) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.RetryBackoff
	b.MaxInterval = d.cfg.RetryMaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
