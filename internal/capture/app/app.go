// Package app assembles the capture runtime: local sqlite durability, the
// connectivity monitor, the offline mirror, autosave, and the background
// sync-queue drainer.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openfield/fieldsync/internal/capture/autosave"
	"github.com/openfield/fieldsync/internal/capture/cache"
	"github.com/openfield/fieldsync/internal/capture/domain"
	"github.com/openfield/fieldsync/internal/capture/network"
	"github.com/openfield/fieldsync/internal/capture/remote"
	"github.com/openfield/fieldsync/internal/capture/session"
	"github.com/openfield/fieldsync/internal/capture/storage/sqlite"
	"github.com/openfield/fieldsync/internal/capture/submit"
	"github.com/openfield/fieldsync/internal/capture/syncqueue"
	"github.com/openfield/fieldsync/internal/capture/telemetry"
	"github.com/openfield/fieldsync/internal/platform/timeouts"
)

// RuntimeConfig holds the capture runtime dependencies and tuning.
type RuntimeConfig struct {
	DBPath string
	// ProbeAddr is the host:port the connectivity monitor dials.
	ProbeAddr     string
	ProbeInterval time.Duration
	CacheTTL      time.Duration
	Drain         syncqueue.DrainConfig
}

// Runtime is a fully wired capture subsystem. Hosts embed it and build
// sessions on top of its services.
type Runtime struct {
	Store     *sqlite.Store
	Monitor   *network.Monitor
	Mirror    *cache.Mirror
	Autosave  *autosave.Service
	Queue     *syncqueue.Queue
	Submitter *submit.Coordinator
	Emitter   *telemetry.Emitter

	remote  remote.Store
	drainer *syncqueue.Drainer
	cfg     RuntimeConfig
}

// New opens local storage and wires every capture service. The caller owns
// the remote backend client.
func New(cfg RuntimeConfig, backend remote.Store) (*Runtime, error) {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open capture db: %w", err)
	}

	monitor := network.NewMonitor(nil, cfg.ProbeAddr)
	mirror := cache.NewMirror(store, cfg.CacheTTL)
	saver := autosave.NewService(store, autosave.DefaultDebounce)
	queue := syncqueue.NewQueue(store)
	emitter := telemetry.NewEmitter(store)
	coordinator := submit.NewCoordinator(backend, queue, mirror, emitter)
	drainer := syncqueue.NewDrainer(store, submit.NewReplayer(backend), monitor.Check, emitter, cfg.Drain)

	return &Runtime{
		Store:     store,
		Monitor:   monitor,
		Mirror:    mirror,
		Autosave:  saver,
		Queue:     queue,
		Submitter: coordinator,
		Emitter:   emitter,
		remote:    backend,
		drainer:   drainer,
		cfg:       cfg,
	}, nil
}

// SessionParams identifies the respondent a new session captures.
type SessionParams struct {
	ProjectID      string
	RespondentID   string
	RespondentType string
	Commodities    []string
	Country        string
	Questions      []domain.Question
	Confirm        session.ConfirmFunc
}

// NewSession builds a survey session on top of the runtime services.
func (r *Runtime) NewSession(params SessionParams) (*session.Session, error) {
	return session.New(session.Config{
		ProjectID:      params.ProjectID,
		RespondentID:   params.RespondentID,
		RespondentType: params.RespondentType,
		Commodities:    params.Commodities,
		Country:        params.Country,
		Questions:      params.Questions,
		Autosave:       r.Autosave,
		Submitter:      r.Submitter,
		Confirm:        params.Confirm,
	})
}

// Run starts the connectivity watch loop and the queue drainer, blocking
// until ctx is canceled, then shuts the runtime down.
func (r *Runtime) Run(ctx context.Context) error {
	unsubscribe := r.Monitor.AddListener(func(online bool) {
		if !online {
			log.Printf("app: connectivity lost")
			return
		}
		log.Printf("app: connectivity restored")
		go r.refreshMirror(context.WithoutCancel(ctx))
	})
	defer unsubscribe()

	go r.Monitor.Watch(ctx, r.cfg.ProbeInterval)
	go r.drainer.Run(ctx)

	if r.Monitor.Check(ctx) {
		r.refreshMirror(ctx)
	}

	<-ctx.Done()
	return r.Close()
}

// Close flushes and releases local resources. It waits up to the storage
// shutdown budget for the close to finish.
func (r *Runtime) Close() error {
	r.Autosave.Stop()

	done := make(chan error, 1)
	go func() { done <- r.Store.Close() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close capture db: %w", err)
		}
		return nil
	case <-time.After(timeouts.StorageShutdown):
		return fmt.Errorf("close capture db: timed out after %s", timeouts.StorageShutdown)
	}
}

// refreshMirror re-mirrors the project list and each project's questions
// so subsequent offline reads stay warm. Failures are logged; the mirror
// keeps its last-known-good copies.
func (r *Runtime) refreshMirror(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.RemoteCall)
	projects, err := r.remote.GetProjects(callCtx)
	cancel()
	if err != nil {
		log.Printf("app: refresh projects: %v", err)
		return
	}
	r.Mirror.CacheProjects(ctx, projects)

	for _, project := range projects {
		callCtx, cancel := context.WithTimeout(ctx, timeouts.RemoteCall)
		questions, err := r.remote.GetQuestions(callCtx, project.ID)
		cancel()
		if err != nil {
			log.Printf("app: refresh questions %s: %v", project.ID, err)
			continue
		}
		r.Mirror.CacheQuestions(ctx, project.ID, questions)
	}
}
