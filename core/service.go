package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"
)

// AuthService sequences password policy, hashing, storage and token issuance
// into the register / login / validate operations.
type AuthService struct {
	handle  *StoreHandle
	tokens  *TokenService
	hasher  CredentialHasher
	logger  Logger
	metrics *Metrics

	autoProvision bool
	now           func() time.Time
}

// Option customises an AuthService.
type Option func(*AuthService)

// WithAutoProvision controls lazy schema provisioning (default true).
func WithAutoProvision(enabled bool) Option {
	return func(s *AuthService) { s.autoProvision = enabled }
}

// WithMetrics records operation outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// NewAuthService wires the collaborators together. The store connection and
// token configuration are shared by every request.
func NewAuthService(store CredentialStore, tokens *TokenService, hasher CredentialHasher, logger Logger, opts ...Option) *AuthService {
	s := &AuthService{
		tokens:        tokens,
		hasher:        hasher,
		logger:        logger,
		autoProvision: true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handle = NewStoreHandle(store, logger, s.autoProvision)
	return s
}

var _ Authenticator = (*AuthService)(nil)

// Register creates a credential and returns a session token.
// Order: missing input, schema, existence, strength, hash, store, token.
func (s *AuthService) Register(ctx context.Context, username, password string) (session Session, err error) {
	defer func() { s.metrics.ObserveOperation("register", err) }()
	s.logger.Debug("register requested", "username", username)

	if strings.TrimSpace(username) == "" {
		return Session{}, s.reject("register", username, newError(KindValidation, "missing username", nil))
	}
	if password == "" {
		return Session{}, s.reject("register", username, newError(KindValidation, "missing password", nil))
	}

	store, err := s.handle.Ready(ctx)
	if err != nil {
		return Session{}, s.fault("register", username, storageError("ensure schema", username, err))
	}

	_, found, err := store.Get(ctx, username)
	if err != nil {
		return Session{}, s.fault("register", username, storageError("get credential", username, err))
	}
	if found {
		return Session{}, s.reject("register", username, newError(KindConflict, "username taken", nil))
	}

	if !IsStrongPassword(password) {
		return Session{}, s.reject("register", username, newError(KindValidation, "weak password", nil))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if KindOf(err) == KindValidation {
			return Session{}, s.reject("register", username, err)
		}
		return Session{}, s.fault("register", username, newError(KindInternal, "password hashing failed", err))
	}

	record := CredentialRecord{Username: username, PasswordHash: hash, CreatedAt: s.now().UTC()}
	if err := store.Put(ctx, username, record); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return Session{}, s.reject("register", username, newError(KindConflict, "username taken", err))
		}
		return Session{}, s.fault("register", username, storageError("put credential", username, err))
	}

	token, err := s.tokens.Issue(username)
	if err != nil {
		return Session{}, s.fault("register", username, err)
	}

	s.logger.Info("user registered", "username", username)
	return Session{Username: username, Token: token}, nil
}

// Login verifies a password and returns a session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (session Session, err error) {
	defer func() { s.metrics.ObserveOperation("login", err) }()
	s.logger.Debug("login requested", "username", username)

	if password == "" {
		return Session{}, s.reject("login", username, newError(KindValidation, "missing password", nil))
	}

	store, err := s.handle.Ready(ctx)
	if err != nil {
		return Session{}, s.fault("login", username, storageError("ensure schema", username, err))
	}

	record, found, err := store.Get(ctx, username)
	if err != nil {
		return Session{}, s.fault("login", username, storageError("get credential", username, err))
	}
	if !found {
		// Spend the same hashing work as a real check so timing does not reveal existence.
		s.hasher.Verify(password, dummyPasswordHash)
		return Session{}, s.reject("login", username, newError(KindNotFound, "unknown username", nil))
	}

	if !s.hasher.Verify(password, record.PasswordHash) {
		return Session{}, s.reject("login", username, newError(KindUnauthorized, "bad credentials", nil))
	}

	token, err := s.tokens.Issue(username)
	if err != nil {
		return Session{}, s.fault("login", username, err)
	}

	s.logger.Info("user logged in", "username", username)
	return Session{Username: username, Token: token}, nil
}

// Validate checks a session token and returns its subject.
func (s *AuthService) Validate(token string) (identity Identity, err error) {
	defer func() { s.metrics.ObserveOperation("validate", err) }()

	if token == "" {
		return Identity{}, s.reject("validate", "", newError(KindValidation, "missing token", nil))
	}

	subject, err := s.tokens.Validate(token)
	if err != nil {
		return Identity{}, s.reject("validate", "", err)
	}

	s.logger.Debug("token validated", "subject", subject)
	return Identity{Subject: subject}, nil
}

// ListCredentials returns every stored record, ordered by username.
func (s *AuthService) ListCredentials(ctx context.Context) (records []CredentialRecord, err error) {
	defer func() { s.metrics.ObserveOperation("list", err) }()

	store, err := s.handle.Ready(ctx)
	if err != nil {
		return nil, s.fault("list", "", storageError("ensure schema", "", err))
	}
	records, err = store.ScanAll(ctx)
	if err != nil {
		return nil, s.fault("list", "", storageError("scan credentials", "", err))
	}
	return records, nil
}

// Provisioned reports whether the credential schema is known to exist.
func (s *AuthService) Provisioned() bool {
	return s.handle.Provisioned()
}

// reject logs a client-caused failure and returns it unchanged.
func (s *AuthService) reject(op, username string, err error) error {
	s.logger.Warn(op+" rejected", "username", username, "kind", string(KindOf(err)), "reason", PublicMessage(err))
	return err
}

// fault logs an infrastructure failure with full context and returns it unchanged.
func (s *AuthService) fault(op, username string, err error) error {
	s.logger.Error(op+" failed", "username", username, "kind", string(KindOf(err)), "error", err)
	return err
}

func storageError(operation, username string, err error) error {
	return newError(KindStorageUnavailable, "storage unavailable",
		oops.Code(string(KindStorageUnavailable)).
			With("operation", operation).
			With("username", username).
			Wrap(err))
}
