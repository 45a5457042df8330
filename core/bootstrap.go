package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"
)

const (
	operatorPasswordLength   = 32
	operatorPasswordAttempts = 64
)

// CredentialRegistrar is the part of the auth service used for bootstrapping.
type CredentialRegistrar interface {
	Register(ctx context.Context, username, password string) (Session, error)
}

// BootstrapOperator creates an initial operator credential when none exists.
// It is idempotent: if the username is already registered, it does nothing.
func BootstrapOperator(ctx context.Context, auth CredentialRegistrar, cfg Config, logger Logger) error {
	if !cfg.BootstrapOperatorEnabled {
		return nil
	}

	username := cfg.BootstrapOperatorUsername
	if username == "" {
		username = "admin"
	}
	password, err := generateStrongPassword(operatorPasswordLength)
	if err != nil {
		return err
	}

	if _, err := auth.Register(ctx, username, password); err != nil {
		if KindOf(err) == KindConflict {
			logger.Debug("operator credential already present", "username", username)
			return nil
		}
		return err
	}

	if cfg.InitialOperatorPasswordPath != "" {
		if err := os.WriteFile(cfg.InitialOperatorPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		logger.Info("initial operator created", "username", username, "password_path", cfg.InitialOperatorPasswordPath)
	} else {
		logger.Info("initial operator created", "username", username, "password", password)
	}

	return nil
}

// generateStrongPassword draws random passwords until one satisfies IsStrongPassword.
// A suffix guarantees the symbol class, since base64url only contributes '-'.
func generateStrongPassword(length int) (string, error) {
	for range operatorPasswordAttempts {
		candidate, err := generatePassword(length)
		if err != nil {
			return "", err
		}
		candidate += "#"
		if IsStrongPassword(candidate) {
			return candidate, nil
		}
	}
	return "", errors.New("could not generate a password satisfying the policy")
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
