package claim

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/unihub/campus/core"
	"github.com/unihub/campus/core/user"
)

var (
	// ErrNotAdmin aborts a run before any claim is touched: the server-side
	// profile record does not declare the admin role. Never retried.
	ErrNotAdmin = errors.New("profile record does not declare the admin role")
)

// ClaimPropagationError reports an exhausted synchronization run. The
// session stays unprivileged; the user must re-authenticate.
type ClaimPropagationError struct {
	UID      string
	Attempts int
	Err      error
}

func (e *ClaimPropagationError) Error() string {
	return fmt.Sprintf("admin claim did not propagate for %s after %d attempts: %v", e.UID, e.Attempts, e.Err)
}

func (e *ClaimPropagationError) Cause() error  { return e.Err }
func (e *ClaimPropagationError) Unwrap() error { return e.Err }

type (
	// ProfileStore is the slice of the profile repository the synchronizer
	// needs: the server-side-trusted role read and the bookkeeping write.
	ProfileStore interface {
		GetUserByID(ctx context.Context, id string) (user.User, error)
		SetAdminClaimFlag(ctx context.Context, id string, set bool) error
	}

	// ClaimSetter instructs the identity provider to attach the admin claim.
	// Implementations must be idempotent; repeat calls are safe.
	ClaimSetter interface {
		SetAdminClaim(ctx context.Context, uid string) error
	}

	// Synchronizer converges a profile-declared admin role with the
	// provider-issued claim. Fail-closed: no intermediate state ever reports
	// the claim as attached before it is read back from a fresh token.
	//
	// Runs are serialized per identity: a Synchronize call for a uid with a
	// run already in flight waits for that run and shares its result.
	Synchronizer struct {
		profiles ProfileStore
		provider core.IdentityProvider
		backend  ClaimSetter
		logger   core.Logger
		mailSvc  core.EmailService // optional remediation notice
		conf     core.ClaimSyncConfig

		sleep func(ctx context.Context, d time.Duration) error // mockable

		mu       sync.Mutex
		inflight map[string]*runResult
	}

	runResult struct {
		done chan struct{}
		err  error
	}
)

func NewSynchronizer(
	profiles ProfileStore,
	provider core.IdentityProvider,
	backend ClaimSetter,
	logger core.Logger,
	mailSvc core.EmailService,
	conf core.ClaimSyncConfig,
) *Synchronizer {
	return &Synchronizer{
		profiles: profiles,
		provider: provider,
		backend:  backend,
		logger:   logger,
		mailSvc:  mailSvc,
		conf:     conf,
		sleep:    sleepCtx,
		inflight: make(map[string]*runResult),
	}
}

// Synchronize runs the propagation protocol for uid:
//
//  1. re-read the server-side-trusted role; abort with ErrNotAdmin otherwise
//  2. instruct the backend to attach the claim
//  3. wait the propagation allowance
//  4. force a token refresh and re-read the claim
//  5. attached: book-keep on the profile record and return
//  6. not yet: back off exponentially and go to 2 until attempts exhaust
func (s *Synchronizer) Synchronize(ctx context.Context, uid string) error {
	s.mu.Lock()
	if run, ok := s.inflight[uid]; ok {
		s.mu.Unlock()
		select {
		case <-run.done:
			return run.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	run := &runResult{done: make(chan struct{})}
	s.inflight[uid] = run
	s.mu.Unlock()

	run.err = s.run(ctx, uid)
	close(run.done)

	s.mu.Lock()
	delete(s.inflight, uid)
	s.mu.Unlock()
	return run.err
}

func (s *Synchronizer) run(ctx context.Context, uid string) error {
	// the role must come from the store, never from a cached copy
	usr, err := s.profiles.GetUserByID(ctx, uid)
	if err != nil {
		return errors.Wrap(err, "re-reading profile record")
	}
	if usr.Role != user.RoleAdmin {
		return ErrNotAdmin
	}

	backoff := Backoff{MaxAttempts: s.conf.MaxAttempts, BaseDelay: s.conf.BaseDelay}
	var lastErr error

	for {
		attached, err := s.attempt(ctx, uid)
		if err != nil {
			lastErr = err
			s.logger.Warn(fmt.Sprintf("claim sync attempt %d for %s: %v", backoff.Attempt+1, uid, err))
		} else if attached {
			if err := s.profiles.SetAdminClaimFlag(ctx, uid, true); err != nil {
				// claim is live on the provider; a failed bookkeeping write
				// must not report the run as failed
				s.logger.Error("book-keeping admin claim flag", err)
			}
			return nil
		} else {
			lastErr = errors.New("claim not visible after token refresh")
		}

		delay, ok := backoff.Next()
		if !ok {
			perr := &ClaimPropagationError{UID: uid, Attempts: backoff.Attempt, Err: lastErr}
			s.notifyFailure(usr, perr)
			return perr
		}
		if err := s.sleep(ctx, delay); err != nil {
			return errors.Wrap(err, "waiting for retry")
		}
	}
}

// attempt performs protocol steps 2-4 once.
func (s *Synchronizer) attempt(ctx context.Context, uid string) (bool, error) {
	if err := s.backend.SetAdminClaim(ctx, uid); err != nil {
		return false, errors.Wrap(err, "requesting claim attachment")
	}

	// the provider does not apply claims to already-issued tokens instantly
	if err := s.sleep(ctx, s.conf.BaseDelay); err != nil {
		return false, errors.Wrap(err, "waiting for propagation")
	}

	claims, err := s.provider.Claims(ctx, uid, true /* forceRefresh */)
	if err != nil {
		return false, errors.Wrap(err, "re-reading claims")
	}
	return claims.Admin, nil
}

func (s *Synchronizer) notifyFailure(usr user.User, perr *ClaimPropagationError) {
	s.logger.Error(perr.Error(), perr)
	if s.mailSvc == nil {
		return
	}
	s.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Admin permissions could not be activated",
		TextContent: "Your admin permissions could not be activated. " +
			"Please log out and log back in; contact support if the problem persists.",
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
