package session

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/unihub/campus/core"
	"github.com/unihub/campus/core/user"
)

type (
	// ProfileGetter is the slice of the profile repository the Manager needs.
	ProfileGetter interface {
		GetUserByID(ctx context.Context, id string) (user.User, error)
	}

	// Synchronizer converges the profile-declared admin role with the
	// provider claim. Implemented by core/claim.
	Synchronizer interface {
		Synchronize(ctx context.Context, uid string) error
	}

	// Manager owns the process-wide Session. It bridges identity-provider
	// change events and profile-record lookups into a single coherent value
	// and is the only writer of session state.
	//
	// Subscriber callbacks run with the Manager's lock held: no callback
	// fires after its unsubscribe function returns, and callbacks must not
	// call back into the Manager synchronously.
	Manager struct {
		provider core.IdentityProvider
		profiles ProfileGetter
		syncer   Synchronizer
		validate *validator.Validate
		logger   core.Logger

		mu           sync.Mutex
		seq          uint64
		resolved     bool
		cur          *Session
		lastErr      error
		subs         map[int]func(*Session)
		nextSubID    int
		stopProvider func()
	}
)

func NewManager(
	provider core.IdentityProvider,
	profiles ProfileGetter,
	syncer Synchronizer,
	validate *validator.Validate,
	logger core.Logger,
) *Manager {
	m := &Manager{
		provider: provider,
		profiles: profiles,
		syncer:   syncer,
		validate: validate,
		logger:   logger,
		subs:     make(map[int]func(*Session)),
	}
	m.stopProvider = provider.OnChange(m.handleChange)
	return m
}

// Close detaches the Manager from the identity provider. Subscribers receive
// no further publishes.
func (m *Manager) Close() {
	if m.stopProvider != nil {
		m.stopProvider()
	}
}

// Subscribe registers fn for session publishes. If a session state has
// already been resolved it is replayed to fn immediately. The returned
// function unsubscribes; once it returns, fn will not be called again.
func (m *Manager) Subscribe(fn func(*Session)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn
	if m.resolved {
		fn(m.cur)
	}
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Current returns the session snapshot, or false while signed out or not yet
// resolved.
func (m *Manager) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Session{}, false
	}
	return *m.cur, true
}

// Resolved reports whether the first identity change event has been fully
// processed. Callers gating navigation should treat an unresolved manager
// as "loading", not "signed out".
func (m *Manager) Resolved() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolved
}

// LastError returns the AuthStateError that cleared the session, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Logout signs the current identity out of the provider. The session clears
// when the provider's signed-out event arrives.
func (m *Manager) Logout(ctx context.Context) error {
	cur, ok := m.Current()
	if !ok {
		return nil
	}
	return errors.Wrap(m.provider.SignOut(ctx, cur.UID), "signing out")
}

// handleChange runs on every identity-provider change event. The sequence
// number is captured synchronously in event order; resolution runs
// asynchronously and its result is discarded if a newer event has since
// claimed the sequence (last-writer-wins by event ordering, not completion
// order).
func (m *Manager) handleChange(ident *core.Identity) {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	if ident == nil {
		m.publish(seq, nil, nil)
		return
	}
	go m.resolve(seq, *ident)
}

func (m *Manager) resolve(seq uint64, ident core.Identity) {
	ctx := context.Background()

	usr, err := m.profiles.GetUserByID(ctx, ident.UID)
	if err != nil {
		m.fail(seq, ident.UID, errors.Wrap(err, "fetching profile record"))
		return
	}
	if err := user.ValidateRecord(m.validate, usr); err != nil {
		m.fail(seq, ident.UID, errors.Wrap(err, "malformed profile record"))
		return
	}

	// no forced refresh here: read whatever the provider already cached
	claims, err := m.provider.Claims(ctx, ident.UID, false)
	if err != nil {
		m.fail(seq, ident.UID, errors.Wrap(err, "reading identity claims"))
		return
	}

	s := &Session{
		UID:      ident.UID,
		Email:    usr.Email,
		Name:     usr.Name,
		Role:     usr.Role,
		Claim:    ClaimVerified(claims.Admin),
		PhotoURL: usr.PhotoURL.String,
	}

	needsSync := usr.Role == user.RoleAdmin && !claims.Admin
	if needsSync && m.syncer != nil {
		s.Claim = ClaimPending()
	}

	if !m.publish(seq, s, nil) {
		return
	}
	if needsSync && m.syncer != nil {
		go m.converge(seq, ident.UID)
	}
}

// converge runs the claim synchronizer and re-publishes the session with the
// convergence outcome. Fail-closed: a failed or exhausted run resolves the
// claim to verified-false.
func (m *Manager) converge(seq uint64, uid string) {
	ctx := context.Background()

	if err := m.syncer.Synchronize(ctx, uid); err != nil {
		m.logger.Warn("admin claim convergence failed", errors.Wrap(err, "synchronizing claim"))
		m.republishClaim(seq, uid, ClaimVerified(false))
		return
	}

	claims, err := m.provider.Claims(ctx, uid, true /* forceRefresh */)
	if err != nil {
		m.logger.Error("re-reading claims after convergence", err)
		m.republishClaim(seq, uid, ClaimVerified(false))
		return
	}
	m.republishClaim(seq, uid, ClaimVerified(claims.Admin))
}

// fail clears the session, surfaces an AuthStateError and signs the identity
// out of the provider so a partially provisioned account holds no live token.
func (m *Manager) fail(seq uint64, uid string, err error) {
	aerr := &AuthStateError{UID: uid, Err: err}
	m.logger.Error(aerr.Error(), err)
	if !m.publish(seq, nil, aerr) {
		return
	}
	if serr := m.provider.SignOut(context.Background(), uid); serr != nil {
		m.logger.Error("forcing sign-out after auth state error", serr)
	}
}

// publish installs the session for seq and notifies subscribers. Returns
// false if a newer event has superseded seq.
func (m *Manager) publish(seq uint64, s *Session, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.seq {
		return false
	}
	m.resolved = true
	m.cur = s
	m.lastErr = err
	for _, fn := range m.subs {
		fn(s)
	}
	return true
}

// republishClaim swaps the claim state on the still-current session for uid.
func (m *Manager) republishClaim(seq uint64, uid string, cs ClaimState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq != m.seq || m.cur == nil || m.cur.UID != uid {
		return
	}
	updated := *m.cur
	updated.Claim = cs
	m.cur = &updated
	for _, fn := range m.subs {
		fn(m.cur)
	}
}
