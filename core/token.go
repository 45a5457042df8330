package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the lifetime of a session token.
const DefaultTokenTTL = 24 * time.Hour

// TokenStatus is the outcome of inspecting a token.
type TokenStatus int

const (
	TokenInvalid TokenStatus = iota
	TokenValid
	TokenExpired
)

func (s TokenStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// TokenCheck is the tagged result of Inspect: Subject and ExpiresAt are only
// meaningful when Status is TokenValid or TokenExpired. Reason explains a
// TokenInvalid verdict for logs.
type TokenCheck struct {
	Status    TokenStatus
	Subject   string
	ExpiresAt time.Time
	Reason    error
}

// TokenConfig configures a TokenService.
type TokenConfig struct {
	Secret []byte
	Method string // HS256 (default), HS384 or HS512
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
	Now    func() time.Time
}

// TokenService issues and validates signed, time-bounded session tokens.
// It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewTokenService validates cfg and returns a TokenService.
// An empty secret is accepted here; Issue reports it as a configuration error.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	method, err := signingMethodFor(cfg.Method)
	if err != nil {
		return nil, newError(KindConfig, "unsupported signing method", err)
	}
	if cfg.TTL < 0 || cfg.Leeway < 0 {
		return nil, newError(KindConfig, "invalid token lifetime", errors.New("ttl and leeway must not be negative"))
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenService{
		secret: cfg.Secret,
		method: method,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		leeway: cfg.Leeway,
		now:    cfg.Now,
	}, nil
}

// Issue signs a token for subject that expires TTL from now.
func (s *TokenService) Issue(subject string) (string, error) {
	if len(s.secret) == 0 {
		return "", newError(KindConfig, "token signing secret not configured", nil)
	}
	if subject == "" {
		return "", newError(KindValidation, "missing subject", nil)
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", newError(KindConfig, "token signing failed",
			oops.Code("TOKEN_SIGN_FAILED").With("method", s.method.Alg()).Wrap(err))
	}
	return signed, nil
}

// Inspect checks the signature and expiry of token. The signature is always
// verified before expiry, so a TokenExpired verdict implies an authentic token.
func (s *TokenService) Inspect(token string) TokenCheck {
	if len(s.secret) == 0 {
		return TokenCheck{Status: TokenInvalid, Reason: errors.New("signing secret not configured")}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.leeway > 0 {
		opts = append(opts, jwt.WithLeeway(s.leeway))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	switch {
	case err == nil && claims.Subject != "":
		return TokenCheck{Status: TokenValid, Subject: claims.Subject, ExpiresAt: expiresAt}
	case err == nil:
		return TokenCheck{Status: TokenInvalid, Reason: errors.New("token has no subject")}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenInvalidIssuer):
		// a token from another issuer is invalid here even once it has also expired
		return TokenCheck{Status: TokenInvalid, Reason: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return TokenCheck{Status: TokenExpired, Subject: claims.Subject, ExpiresAt: expiresAt, Reason: err}
	default:
		return TokenCheck{Status: TokenInvalid, Reason: err}
	}
}

// Validate returns the subject of a valid token, or an ExpiredToken / InvalidToken error.
func (s *TokenService) Validate(token string) (string, error) {
	check := s.Inspect(token)
	switch check.Status {
	case TokenValid:
		return check.Subject, nil
	case TokenExpired:
		return "", newError(KindExpiredToken, "token expired", check.Reason)
	default:
		return "", newError(KindInvalidToken, "invalid token", check.Reason)
	}
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

func signingMethodFor(name string) (jwt.SigningMethod, error) {
	switch strings.ToUpper(name) {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported signing method %q", name)
	}
}
