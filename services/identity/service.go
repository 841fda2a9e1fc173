package identsvc

import (
	"context"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/unihub/campus/core"
	"github.com/unihub/campus/core/user"
)

var (
	// errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrNotSignedIn        = errors.New("identity not signed in")
)

// TokenClaims represents the authorization claims transmitted via a JWT.
// Admin is the provider-trusted custom claim; it only appears in tokens
// issued after the claim was attached.
type TokenClaims struct {
	jwt.StandardClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

type (
	// ProfileAuthenticator is the slice of the profile repository the
	// provider needs for credential checks.
	ProfileAuthenticator interface {
		GetUserByID(ctx context.Context, id string) (user.User, error)
		GetUserByEmail(ctx context.Context, email string) (user.User, error)
	}

	// Service is the hosted identity provider: it authenticates
	// credentials, issues signed tokens and emits identity change events.
	//
	// Custom claims reproduce provider propagation semantics: a claim
	// attached via SetCustomClaim becomes visible only in tokens issued
	// afterwards; already-issued tokens keep their claim snapshot until a
	// forced refresh.
	Service struct {
		profiles ProfileAuthenticator
		conf     *core.Config

		mu        sync.Mutex
		subs      map[int]func(*core.Identity)
		nextSubID int
		claims    map[string]bool                // authoritative provider-side claims
		tokens    map[string]core.IdentityClaims // claim snapshot of the current token per uid
	}
)

var _ core.IdentityProvider = (*Service)(nil)

func NewService(profiles ProfileAuthenticator, conf *core.Config) *Service {
	return &Service{
		profiles: profiles,
		conf:     conf,
		subs:     make(map[int]func(*core.Identity)),
		claims:   make(map[string]bool),
		tokens:   make(map[string]core.IdentityClaims),
	}
}

// OnChange subscribes to identity change events. Callbacks run with the
// provider's lock held: none fires after the returned unsubscribe returns,
// and callbacks must not call back into the Service synchronously.
func (s *Service) OnChange(fn func(*core.Identity)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SignIn authenticates credentials, issues a token and emits a signed-in
// change event.
func (s *Service) SignIn(ctx context.Context, email, password string) (core.Identity, string, error) {
	usr, err := s.profiles.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.Identity{}, "", ErrInvalidCredentials
		}
		return core.Identity{}, "", errors.Wrap(err, "finding user by email")
	}
	if err := usr.CheckPassword(password); err != nil {
		return core.Identity{}, "", ErrInvalidCredentials
	}
	if !usr.IsActive {
		return core.Identity{}, "", ErrAccountDeactivated
	}

	token, err := s.issueToken(usr)
	if err != nil {
		return core.Identity{}, "", errors.Wrap(err, "issuing token")
	}

	ident := core.Identity{
		UID:      usr.ID,
		Email:    usr.Email,
		Name:     usr.Name,
		PhotoURL: usr.PhotoURL.String,
	}
	s.emit(&ident)
	return ident, token, nil
}

// SignOut drops the identity's token state and emits a signed-out event.
func (s *Service) SignOut(ctx context.Context, uid string) error {
	s.mu.Lock()
	delete(s.tokens, uid)
	s.mu.Unlock()
	s.emit(nil)
	return nil
}

// Claims returns the claims visible on the identity's current token. With
// forceRefresh a fresh token is minted first, making recently attached
// claims visible.
func (s *Service) Claims(ctx context.Context, uid string, forceRefresh bool) (core.IdentityClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.tokens[uid]
	if !ok {
		return core.IdentityClaims{}, ErrNotSignedIn
	}
	if forceRefresh {
		snapshot = core.IdentityClaims{Admin: s.claims[uid]}
		s.tokens[uid] = snapshot
	}
	return snapshot, nil
}

// SetCustomClaim attaches (or removes) the admin claim on the provider.
// Idempotent. Already-issued tokens are unaffected until refreshed.
func (s *Service) SetCustomClaim(ctx context.Context, uid string, admin bool) error {
	if _, err := s.profiles.GetUserByID(ctx, uid); err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	s.mu.Lock()
	s.claims[uid] = admin
	s.mu.Unlock()
	return nil
}

// RefreshToken re-issues a token for an authenticated identity, picking up
// currently attached claims.
func (s *Service) RefreshToken(ctx context.Context, uid string) (string, error) {
	usr, err := s.profiles.GetUserByID(ctx, uid)
	if err != nil {
		return "", errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return "", ErrAccountDeactivated
	}
	return s.issueToken(usr)
}

func (s *Service) issueToken(usr user.User) (string, error) {
	s.mu.Lock()
	admin := s.claims[usr.ID]
	s.tokens[usr.ID] = core.IdentityClaims{Admin: admin}
	s.mu.Unlock()

	now := time.Now()
	claims := &TokenClaims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    s.conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(s.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:  usr.Name,
		Email: usr.Email,
		Role:  usr.Role.String(),
		Admin: admin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(s.conf.SecretKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (s *Service) emit(ident *core.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fn := range s.subs {
		fn(ident)
	}
}
