package core

import "context"

// Session is returned by a successful Register or Login.
type Session struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Identity is returned by a successful token validation.
type Identity struct {
	Subject string `json:"subject"`
}

// Authenticator is the operation contract the HTTP layer dispatches to.
// Every failure is an *Error; use KindOf to classify it.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (Session, error)
	Login(ctx context.Context, username, password string) (Session, error)
	Validate(token string) (Identity, error)
	ListCredentials(ctx context.Context) ([]CredentialRecord, error)
}
