package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/canopy-platform/directory-services/internal/roster"
	"github.com/canopy-platform/directory-services/models"
)

// ErrRunInProgress is returned when a pass is already running, either in
// this process or in another one holding the database lock.
var ErrRunInProgress = errors.New("a reconciliation run is already in progress")

// Locker serializes passes across processes. The database advisory lock is
// the production implementation.
type Locker interface {
	AcquireRunLock(ctx context.Context) (bool, error)
	ReleaseRunLock(ctx context.Context) error
}

// Runner executes passes one at a time. The cron entrypoint calls RunOnce
// synchronously; the HTTP API calls Trigger for a fire-and-forget pass.
type Runner struct {
	Reconciler *Reconciler
	Locker     Locker
	LoadRoster func() (*roster.Roster, error)
	Timeout    time.Duration
	Log        *zerolog.Logger

	mu      sync.Mutex
	running bool
}

// RunOnce loads the roster and runs one pass under the cross-process lock.
func (r *Runner) RunOnce(ctx context.Context) (*models.ReconcileReport, error) {
	acquired, err := r.Locker.AcquireRunLock(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := r.Locker.ReleaseRunLock(context.Background()); err != nil {
			r.Log.Error().Err(err).Msg("failed to release run lock")
		}
	}()

	ros, err := r.LoadRoster()
	if err != nil {
		return nil, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	return r.Reconciler.Run(ctx, ros)
}

// Trigger starts a pass in the background. It returns ErrRunInProgress when
// this process already has one running; a pass held elsewhere is detected
// inside the spawned goroutine via the lock.
func (r *Runner) Trigger() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRunInProgress
	}
	r.running = true
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
		}()
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.Log.Error().Err(err).Msg("triggered reconciliation run failed")
		}
	}()
	return nil
}

// Running reports whether this process has a pass in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
