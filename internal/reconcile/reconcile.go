// Package reconcile drives every configured identity provider towards the
// roster. The driver is provider-agnostic: capability gaps are expressed by
// the adapters themselves, so the loop below runs unmodified over vendors
// with and without a group concept.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/canopy-platform/directory-services/internal/events"
	"github.com/canopy-platform/directory-services/internal/provider"
	"github.com/canopy-platform/directory-services/internal/roster"
	"github.com/canopy-platform/directory-services/models"
)

// Store is the persistence the driver needs between runs: roster snapshots,
// provider-assigned external IDs, the welcome flag and run reports.
type Store interface {
	UpsertRoster(users []models.User, groups []models.Group) error
	GetUsers() ([]models.User, error)
	SetExternalID(username, provider, externalID string) error
	MarkWelcomed(username string, at time.Time) error
	RemovedUsers(rosterUsernames []string) ([]models.User, error)
	RemovedGroups(rosterNames []string) ([]models.Group, error)
	DeleteUser(username string) error
	DeleteGroup(name string) error
	StartRun(runID uuid.UUID, startedAt time.Time) error
	FinishRun(report *models.ReconcileReport) error
}

// WelcomeSender delivers the one-time onboarding notification.
type WelcomeSender interface {
	SendWelcome(ctx context.Context, user models.User) error
}

const defaultWorkers = 4

// Reconciler runs one full convergence pass over all providers.
type Reconciler struct {
	Providers []provider.Provider
	Store     Store
	Welcome   WelcomeSender
	Events    events.Notifier
	Workers   int
	Log       *zerolog.Logger
}

func New(providers []provider.Provider, store Store, welcome WelcomeSender, notifier events.Notifier, workers int, log *zerolog.Logger) *Reconciler {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	return &Reconciler{
		Providers: providers,
		Store:     store,
		Welcome:   welcome,
		Events:    notifier,
		Workers:   workers,
		Log:       log,
	}
}

// Run executes one reconciliation pass and returns its report. Unit failures
// are collected in the report, never returned: only roster validation,
// persistence failures and context cancellation abort a run.
func (r *Reconciler) Run(ctx context.Context, ros *roster.Roster) (*models.ReconcileReport, error) {
	if err := ros.Validate(); err != nil {
		return nil, fmt.Errorf("roster validation failed: %w", err)
	}

	runID := uuid.New()
	startedAt := time.Now().UTC()
	log := r.Log.With().Str("run_id", runID.String()).Logger()
	log.Info().Int("users", len(ros.Users)).Int("groups", len(ros.Groups)).
		Int("providers", len(r.Providers)).Msg("starting reconciliation run")

	if err := r.Store.StartRun(runID, startedAt); err != nil {
		return nil, err
	}

	// Snapshot the deprovisioning sets before the roster overwrites them.
	usernames := make([]string, 0, len(ros.Users))
	for _, u := range ros.Users {
		usernames = append(usernames, u.Username)
	}
	groupNames := make([]string, 0, len(ros.Groups))
	for _, g := range ros.Groups {
		groupNames = append(groupNames, g.Name)
	}
	removedUsers, err := r.Store.RemovedUsers(usernames)
	if err != nil {
		return nil, err
	}
	removedGroups, err := r.Store.RemovedGroups(groupNames)
	if err != nil {
		return nil, err
	}

	if err := r.Store.UpsertRoster(ros.Users, ros.Groups); err != nil {
		return nil, err
	}

	// Re-read to pick up external IDs and welcome flags from earlier runs.
	users, err := r.loadUsers(ros)
	if err != nil {
		return nil, err
	}

	run := &runState{
		runID:         runID,
		users:         users,
		groups:        ros.Groups,
		removedUsers:  removedUsers,
		removedGroups: removedGroups,
	}

	report := &models.ReconcileReport{
		RunID:     runID,
		StartedAt: startedAt,
		Providers: make([]*models.ProviderReport, len(r.Providers)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range r.Providers {
		i, p := i, p
		g.Go(func() error {
			report.Providers[i] = r.reconcileProvider(gctx, p, run, &log)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		report.EndedAt = time.Now().UTC()
		_ = r.Store.FinishRun(report)
		return report, err
	}

	r.sendWelcomes(ctx, run, &log)
	r.pruneStore(run, &log)

	report.EndedAt = time.Now().UTC()
	if err := r.Store.FinishRun(report); err != nil {
		return report, err
	}

	log.Info().Bool("failed", report.Failed()).
		Dur("elapsed", report.EndedAt.Sub(report.StartedAt)).
		Msg("reconciliation run finished")
	return report, nil
}

// runState is the shared, read-mostly view of one pass. ensured and blocked
// are the only mutable members and are guarded by mu.
type runState struct {
	runID         uuid.UUID
	users         []models.User
	groups        []models.Group
	removedUsers  []models.User
	removedGroups []models.Group

	mu      sync.Mutex
	ensured map[string]bool // users provisioned by at least one provider
	blocked map[string]bool // removed units a provider failed to deprovision
}

func (s *runState) markEnsured(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured == nil {
		s.ensured = make(map[string]bool)
	}
	s.ensured[username] = true
}

func (s *runState) markBlocked(unit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked == nil {
		s.blocked = make(map[string]bool)
	}
	s.blocked[unit] = true
}

func (s *runState) isBlocked(unit string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked[unit]
}

// reconcileProvider converges one vendor. Unit failures are recorded and
// never abort sibling units; a configuration error abandons the provider.
func (r *Reconciler) reconcileProvider(ctx context.Context, p provider.Provider, run *runState, log *zerolog.Logger) *models.ProviderReport {
	acc := &accumulator{rep: &models.ProviderReport{Provider: p.Name()}}
	plog := log.With().Str("provider", p.Name()).Logger()
	caps := p.Capabilities()

	// Groups first so membership writes have something to land on. Reserved
	// groups are vendor-managed and never written.
	for _, g := range run.groups {
		if ctx.Err() != nil {
			return acc.rep
		}
		if caps.Reserved(g.Name) {
			continue
		}
		if err := p.EnsureGroup(ctx, g); err != nil {
			if acc.configError(err, &plog) {
				return acc.rep
			}
			acc.failure(p.Name(), g.Name, err)
			plog.Warn().Err(err).Str("group", g.Name).Msg("group ensure failed")
			continue
		}
		acc.inc(func(rep *models.ProviderReport) { rep.GroupsEnsured++ })
		r.publish(run.runID, p.Name(), g.Name, events.ActionGroupEnsured, "", &plog)
	}

	// One enumeration up front feeds every unit's pruning pass.
	remoteGroups, err := p.ListGroups(ctx)
	if err != nil {
		if !acc.configError(err, &plog) {
			acc.failure(p.Name(), "*", fmt.Errorf("listing remote groups: %w", err))
			plog.Error().Err(err).Msg("remote group enumeration failed, abandoning provider")
		}
		return acc.rep
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg, wctx := errgroup.WithContext(pctx)
	wg.SetLimit(r.Workers)
	for _, user := range run.users {
		if wctx.Err() != nil {
			break
		}
		user := user
		wg.Go(func() error {
			r.userUnit(wctx, p, caps, user, remoteGroups, run, acc, &plog)
			if acc.hasConfigError() {
				cancel()
			}
			return nil
		})
	}
	_ = wg.Wait()
	if acc.hasConfigError() || ctx.Err() != nil {
		return acc.rep
	}

	r.deprovision(ctx, p, caps, run, acc, &plog)
	return acc.rep
}

// userUnit runs the per-user state machine: ensure, then converge
// memberships, then prune. Any vendor error fails this unit only.
func (r *Reconciler) userUnit(ctx context.Context, p provider.Provider, caps provider.Capabilities,
	user models.User, remoteGroups []models.RemoteGroup, run *runState, acc *accumulator, log *zerolog.Logger) {

	ulog := log.With().Str("user", user.Username).Logger()

	extID, err := p.EnsureUser(ctx, user)
	if err != nil {
		if acc.configError(err, &ulog) {
			return
		}
		acc.failure(p.Name(), user.Username, err)
		ulog.Warn().Err(err).Msg("user ensure failed")
		r.publish(run.runID, p.Name(), user.Username, events.ActionUnitFailed, err.Error(), &ulog)
		return
	}
	if extID == "" {
		acc.inc(func(rep *models.ProviderReport) { rep.UsersSkipped++ })
		return
	}

	acc.inc(func(rep *models.ProviderReport) { rep.UsersEnsured++ })
	run.markEnsured(user.Username)

	if prev := user.ExternalID(p.Name()); prev != extID {
		if prev == "" {
			acc.inc(func(rep *models.ProviderReport) { rep.UsersCreated++ })
		}
		if err := r.Store.SetExternalID(user.Username, p.Name(), extID); err != nil {
			acc.failure(p.Name(), user.Username, err)
			ulog.Error().Err(err).Msg("failed to persist external id")
			return
		}
	}
	r.publish(run.runID, p.Name(), user.Username, events.ActionUserEnsured, extID, &ulog)

	if !caps.Groups {
		return
	}

	// Converge the roster's target memberships.
	for _, g := range user.Groups {
		if ctx.Err() != nil {
			return
		}
		if caps.Reserved(g) {
			continue
		}
		ok, err := p.CheckMembership(ctx, user, g)
		if err != nil {
			acc.failure(p.Name(), user.Username, err)
			ulog.Warn().Err(err).Str("group", g).Msg("membership check failed")
			return
		}
		if ok {
			continue
		}
		if err := p.AddMembership(ctx, user, g); err != nil {
			acc.failure(p.Name(), user.Username, err)
			ulog.Warn().Err(err).Str("group", g).Msg("membership add failed")
			return
		}
		acc.inc(func(rep *models.ProviderReport) { rep.MembershipsAdded++ })
		r.publish(run.runID, p.Name(), user.Username, events.ActionMembershipAdded, g, &ulog)
	}

	// Prune memberships the roster does not grant.
	for _, rg := range remoteGroups {
		if ctx.Err() != nil {
			return
		}
		if user.InGroup(rg.Name) || caps.Reserved(rg.Name) {
			continue
		}
		ok, err := p.CheckMembership(ctx, user, rg.Name)
		if err != nil {
			acc.failure(p.Name(), user.Username, err)
			ulog.Warn().Err(err).Str("group", rg.Name).Msg("membership check failed")
			return
		}
		if !ok {
			continue
		}
		if err := p.RemoveMembership(ctx, user, rg.Name); err != nil {
			acc.failure(p.Name(), user.Username, err)
			ulog.Warn().Err(err).Str("group", rg.Name).Msg("membership removal failed")
			return
		}
		acc.inc(func(rep *models.ProviderReport) { rep.MembershipsRemoved++ })
		r.publish(run.runID, p.Name(), user.Username, events.ActionMembershipRemoved, rg.Name, &ulog)
	}
}

// deprovision removes users and groups the roster no longer carries. Users
// go first so group deletions never orphan a membership mid-flight.
func (r *Reconciler) deprovision(ctx context.Context, p provider.Provider, caps provider.Capabilities,
	run *runState, acc *accumulator, log *zerolog.Logger) {

	for _, user := range run.removedUsers {
		if ctx.Err() != nil {
			return
		}
		if err := p.DeleteUser(ctx, user); err != nil {
			acc.failure(p.Name(), user.Username, err)
			run.markBlocked("user:" + user.Username)
			log.Warn().Err(err).Str("user", user.Username).Msg("user deprovision failed")
			continue
		}
		acc.inc(func(rep *models.ProviderReport) { rep.UsersDeleted++ })
		r.publish(run.runID, p.Name(), user.Username, events.ActionUserDeleted, "", log)
	}

	if !caps.Groups {
		return
	}
	for _, g := range run.removedGroups {
		if ctx.Err() != nil {
			return
		}
		if caps.Reserved(g.Name) {
			continue
		}
		if err := p.DeleteGroup(ctx, g); err != nil {
			acc.failure(p.Name(), g.Name, err)
			run.markBlocked("group:" + g.Name)
			log.Warn().Err(err).Str("group", g.Name).Msg("group deprovision failed")
			continue
		}
		acc.inc(func(rep *models.ProviderReport) { rep.GroupsDeleted++ })
		r.publish(run.runID, p.Name(), g.Name, events.ActionGroupDeleted, "", log)
	}
}

// sendWelcomes delivers the onboarding email to users provisioned for the
// first time. The persisted flag, not remote lookup state, keys delivery, so
// a transient lookup failure can never duplicate the email.
func (r *Reconciler) sendWelcomes(ctx context.Context, run *runState, log *zerolog.Logger) {
	if r.Welcome == nil {
		return
	}
	for _, user := range run.users {
		if user.WelcomedAt != nil || !run.ensuredUser(user.Username) {
			continue
		}
		if err := r.Welcome.SendWelcome(ctx, user); err != nil {
			log.Warn().Err(err).Str("user", user.Username).Msg("welcome notification failed")
			continue
		}
		if err := r.Store.MarkWelcomed(user.Username, time.Now().UTC()); err != nil {
			log.Error().Err(err).Str("user", user.Username).Msg("failed to persist welcome flag")
			continue
		}
		r.publish(run.runID, "", user.Username, events.ActionUserWelcomed, "", log)
	}
}

func (s *runState) ensuredUser(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensured[username]
}

// pruneStore drops database rows for removed units once every provider has
// deprovisioned them. A blocked unit stays in the store so the next run
// retries the remote deletion.
func (r *Reconciler) pruneStore(run *runState, log *zerolog.Logger) {
	for _, user := range run.removedUsers {
		if run.isBlocked("user:" + user.Username) {
			continue
		}
		if err := r.Store.DeleteUser(user.Username); err != nil {
			log.Error().Err(err).Str("user", user.Username).Msg("failed to delete user row")
		}
	}
	for _, g := range run.removedGroups {
		if run.isBlocked("group:" + g.Name) {
			continue
		}
		if err := r.Store.DeleteGroup(g.Name); err != nil {
			log.Error().Err(err).Str("group", g.Name).Msg("failed to delete group row")
		}
	}
}

// loadUsers merges the persisted welcome flags and external IDs into the
// roster's user records.
func (r *Reconciler) loadUsers(ros *roster.Roster) ([]models.User, error) {
	stored, err := r.Store.GetUsers()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]models.User, len(stored))
	for _, u := range stored {
		byName[u.Username] = u
	}

	users := make([]models.User, len(ros.Users))
	for i, u := range ros.Users {
		if s, ok := byName[u.Username]; ok {
			u.ExternalIDs = s.ExternalIDs
			u.WelcomedAt = s.WelcomedAt
		}
		users[i] = u
	}
	return users, nil
}

// publish emits one audit event. Event transport failures are logged, never
// treated as unit failures.
func (r *Reconciler) publish(runID uuid.UUID, providerName, unit, action, detail string, log *zerolog.Logger) {
	err := r.Events.Notify(events.EventPayload{
		RunID:    runID,
		Provider: providerName,
		Unit:     unit,
		Action:   action,
		Detail:   detail,
	})
	if err != nil {
		log.Warn().Err(err).Str("action", action).Str("unit", unit).Msg("audit event publish failed")
	}
}

// accumulator collects one provider's report under a lock so worker
// goroutines can record results concurrently.
type accumulator struct {
	mu  sync.Mutex
	rep *models.ProviderReport
}

func (a *accumulator) inc(f func(*models.ProviderReport)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f(a.rep)
}

func (a *accumulator) failure(providerName, unit string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rep.Failures = append(a.rep.Failures, models.UnitFailure{
		Provider: providerName,
		Unit:     unit,
		Error:    err.Error(),
	})
}

// configError records a provider-level configuration error. It reports true
// when err is one, which abandons the provider for this run.
func (a *accumulator) configError(err error, log *zerolog.Logger) bool {
	var ce *provider.ConfigError
	if !errors.As(err, &ce) {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rep.ConfigError == "" {
		a.rep.ConfigError = err.Error()
		log.Error().Err(err).Msg("provider configuration error, skipping provider")
	}
	return true
}

func (a *accumulator) hasConfigError() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rep.ConfigError != ""
}
