// Package auth provides authentication services
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/findosh/coinwatch/internal/apperr"
	"github.com/findosh/coinwatch/internal/config"
	"github.com/findosh/coinwatch/internal/logging"
	"github.com/findosh/coinwatch/internal/models"
	"github.com/findosh/coinwatch/internal/storage"
	"github.com/google/uuid"
)

// Notifier delivers out-of-band messages such as the reset link
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service handles authentication operations
type Service struct {
	cfg      *config.Config
	store    storage.CredentialStore
	notifier Notifier
	log      *slog.Logger

	hasher PasswordHasher
	tokens *TokenIssuer
	resets *ResetTokenManager
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Option customizes a Service
type Option func(*Service)

// WithClock replaces time.Now for token and reset expiry
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHasher replaces the bcrypt hasher
func WithHasher(h PasswordHasher) Option {
	return func(s *Service) { s.hasher = h }
}

// NewService creates a new auth service
func NewService(cfg *config.Config, store storage.CredentialStore, notifier Notifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Service{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		log:      logger.With("component", "auth"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hasher == nil {
		s.hasher = NewBcryptHasher(cfg.BcryptCost)
	}
	s.tokens = NewTokenIssuer(cfg.SecretKey, cfg.SessionDuration, s.now)
	s.resets = NewResetTokenManager(cfg.ResetTTL, s.now)
	return s
}

// Session is the result of a successful register or login
type Session struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      models.Profile `json:"user"`
}

// RegisterInput contains registration data
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register creates a new user account and signs it in
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	email := models.NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, apperr.New(apperr.InvalidInput, "Email and password are required")
	}
	if !strings.Contains(email, "@") {
		return nil, apperr.New(apperr.InvalidInput, "Email is not valid")
	}

	hash, err := s.hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(email, input.Name, hash)

	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return nil, apperr.New(apperr.Conflict, "User with this email already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.InfoContext(ctx, "user registered", "user_id", user.ID)
	return s.newSession(user)
}

// LoginInput contains login credentials
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a user and issues a session token
func (s *Service) Login(ctx context.Context, input LoginInput) (*Session, error) {
	if strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return nil, apperr.New(apperr.InvalidInput, "Email and password are required")
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.store.FindByEmail(ctx, input.Email)
	if errors.Is(err, storage.ErrNotFound) {
		// Spend the same bcrypt work as a real comparison
		_ = s.hasher.Compare(s.dummy(), input.Password)
		return nil, errInvalidCredentials()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, input.Password); err != nil {
		return nil, errInvalidCredentials()
	}

	s.log.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return s.newSession(user)
}

// Logout records the sign-out. Sessions are stateless, so an issued token
// stays valid until it expires; clients are expected to discard it.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) {
	s.log.InfoContext(ctx, "user logged out", "user_id", userID)
}

// Authenticate resolves a session token to its user
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, errUnauthorized(nil)
	}
	id, err := s.tokens.Verify(token)
	if err != nil {
		s.log.DebugContext(ctx, "token rejected", "error", err)
		return nil, errUnauthorized(err)
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.store.FindByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errUnauthorized(err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// ChangePassword updates a user's password after re-verifying the current one
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return apperr.New(apperr.InvalidInput, "Current and new password are required")
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	_, err = storage.Mutate(ctx, s.store, userID, func(u *models.User) error {
		if err := s.hasher.Compare(u.PasswordHash, currentPassword); err != nil {
			return errInvalidCredentials()
		}
		u.PasswordHash = hash
		return nil
	})
	if err != nil {
		return s.mutationError(err)
	}

	s.log.InfoContext(ctx, "password changed", "user_id", userID)
	return nil
}

// ForgotPassword issues a reset secret for email and mails the reset link.
// A new secret supersedes any reset still pending for the user.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if models.NormalizeEmail(email) == "" {
		return apperr.New(apperr.InvalidInput, "Email is required")
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.store.FindByEmail(storeCtx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.New(apperr.NotFound, "User not found")
	}
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}

	secret, token, err := s.resets.Issue()
	if err != nil {
		return err
	}

	var superseded bool
	_, err = storage.Mutate(storeCtx, s.store, user.ID, func(u *models.User) error {
		superseded = u.Reset.Active(s.now())
		t := token
		u.Reset = &t
		return nil
	})
	if err != nil {
		return s.mutationError(err)
	}
	if superseded {
		s.log.InfoContext(ctx, "pending password reset superseded", "user_id", user.ID)
	}

	link := s.cfg.ResetURLBase + secret
	if err := s.notifier.Send(ctx, user.Email, resetSubject, resetBody(link, s.cfg.ResetTTL)); err != nil {
		s.log.WarnContext(ctx, "reset email delivery failed", "user_id", user.ID, "error", err)
		s.rollbackReset(ctx, user.ID, token.Hash)
		return apperr.Wrap(apperr.DeliveryFailed, "Email could not be sent", err)
	}

	s.log.InfoContext(ctx, "password reset issued", "user_id", user.ID)
	return nil
}

// rollbackReset clears the reset state written by ForgotPassword unless a
// newer request has replaced it. It outlives a cancelled request.
func (s *Service) rollbackReset(ctx context.Context, userID uuid.UUID, hash string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()

	_, err := storage.Mutate(ctx, s.store, userID, func(u *models.User) error {
		if u.Reset == nil || u.Reset.Hash != hash {
			return storage.ErrAbort
		}
		u.Reset = nil
		return nil
	})
	if err != nil {
		s.log.ErrorContext(ctx, "reset rollback failed", "user_id", userID, "error", err)
	}
}

// ResetPassword sets a new password using a reset secret. The secret is
// consumed on success.
func (s *Service) ResetPassword(ctx context.Context, secret, newPassword string) error {
	if newPassword == "" {
		return apperr.New(apperr.InvalidInput, "New password is required")
	}
	if secret == "" {
		return errInvalidResetToken()
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.store.FindByResetTokenHash(ctx, HashResetSecret(secret))
	if errors.Is(err, storage.ErrNotFound) {
		return errInvalidResetToken()
	}
	if err != nil {
		return fmt.Errorf("failed to find reset token: %w", err)
	}
	if !s.resets.Valid(user.Reset, secret) {
		return errInvalidResetToken()
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	_, err = storage.Mutate(ctx, s.store, user.ID, func(u *models.User) error {
		if !s.resets.Valid(u.Reset, secret) {
			return errInvalidResetToken()
		}
		u.PasswordHash = hash
		u.Reset = nil
		return nil
	})
	if err != nil {
		return s.mutationError(err)
	}

	s.log.InfoContext(ctx, "password reset completed", "user_id", user.ID)
	return nil
}

// PurgeExpiredResets clears reset state whose expiry has passed and returns
// how many users were cleared.
func (s *Service) PurgeExpiredResets(ctx context.Context) (int, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	now := s.now()
	ids, err := s.store.ExpiredResets(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired resets: %w", err)
	}

	var purged int
	for _, id := range ids {
		cleared := false
		_, err := storage.Mutate(ctx, s.store, id, func(u *models.User) error {
			if u.Reset == nil || u.Reset.Active(now) {
				return storage.ErrAbort
			}
			u.Reset = nil
			cleared = true
			return nil
		})
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return purged, fmt.Errorf("failed to purge reset for %s: %w", id, err)
		}
		if cleared {
			purged++
		}
	}
	return purged, nil
}

func (s *Service) newSession(user *models.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, User: user.Profile()}, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if isPasswordTooLong(err) {
		return "", apperr.New(apperr.InvalidInput, "Password is too long")
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("coinwatch-timing-equalizer")
	})
	return s.dummyHash
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// mutationError classifies errors coming out of storage.Mutate
func (s *Service) mutationError(err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, "User not found", err)
	case errors.Is(err, storage.ErrVersionConflict):
		return apperr.Wrap(apperr.Conflict, "Concurrent update, please retry", err)
	default:
		return fmt.Errorf("failed to update user: %w", err)
	}
}

func errInvalidCredentials() error {
	return apperr.New(apperr.InvalidCredentials, "Invalid email or password")
}

func errInvalidResetToken() error {
	return apperr.New(apperr.InvalidOrExpiredToken, "Invalid or expired token")
}

func errUnauthorized(err error) error {
	return apperr.Wrap(apperr.Unauthorized, "Unauthorized", err)
}

const resetSubject = "Reset your password"

func resetBody(link string, ttl time.Duration) string {
	return fmt.Sprintf(
		"You requested a password reset.\n\nOpen the link below to choose a new password. It expires in %d minutes.\n\n%s\n\nIf you did not request this, you can ignore this email.\n",
		int(ttl.Minutes()), link)
}
