package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/canopy-platform/directory-services/internal/roster"
)

type fakeLocker struct {
	mu   sync.Mutex
	held bool
}

func (l *fakeLocker) AcquireRunLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) ReleaseRunLock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

func testRunner(locker Locker) *Runner {
	log := zerolog.Nop()
	return &Runner{
		Reconciler: testReconciler(newMemStore(), nil, newFakeProvider("github", true)),
		Locker:     locker,
		LoadRoster: func() (*roster.Roster, error) {
			return singleUserRoster([]string{"eng"}), nil
		},
		Timeout: time.Minute,
		Log:     &log,
	}
}

func TestRunOnce(t *testing.T) {
	locker := &fakeLocker{}
	r := testRunner(locker)

	report, err := r.RunOnce(context.Background())
	assert.NoError(t, err)
	assert.False(t, report.Failed())

	// The lock is released so a later pass can run.
	report, err = r.RunOnce(context.Background())
	assert.NoError(t, err)
	assert.NotNil(t, report)
}

func TestRunOnceLockHeldElsewhere(t *testing.T) {
	locker := &fakeLocker{held: true}
	r := testRunner(locker)

	_, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestTriggerWhileRunning(t *testing.T) {
	locker := &fakeLocker{}
	r := testRunner(locker)

	// Hold the runner busy by marking it running directly.
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	assert.ErrorIs(t, r.Trigger(), ErrRunInProgress)
	assert.True(t, r.Running())

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	assert.NoError(t, r.Trigger())
	// Wait for the background pass to finish.
	deadline := time.Now().Add(5 * time.Second)
	for r.Running() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, r.Running())
}
