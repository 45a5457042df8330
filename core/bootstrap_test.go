package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapOperator(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled does nothing", func(t *testing.T) {
		f := newServiceFixture(t)
		cfg := Default()

		require.NoError(t, BootstrapOperator(ctx, f.svc, cfg, discardLogger()))
		assert.Equal(t, 0, f.store.Operations())
	})

	t.Run("creates operator and writes password", func(t *testing.T) {
		f := newServiceFixture(t)
		cfg := Default()
		cfg.BootstrapOperatorEnabled = true
		cfg.BootstrapOperatorUsername = "root"
		cfg.InitialOperatorPasswordPath = filepath.Join(t.TempDir(), "initial-password")

		require.NoError(t, BootstrapOperator(ctx, f.svc, cfg, discardLogger()))

		raw, err := os.ReadFile(cfg.InitialOperatorPasswordPath)
		require.NoError(t, err)
		password := strings.TrimSpace(string(raw))
		assert.True(t, IsStrongPassword(password))

		info, err := os.Stat(cfg.InitialOperatorPasswordPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		session, err := f.svc.Login(ctx, "root", password)
		require.NoError(t, err)
		assert.Equal(t, "root", session.Username)
	})

	t.Run("idempotent", func(t *testing.T) {
		f := newServiceFixture(t)
		cfg := Default()
		cfg.BootstrapOperatorEnabled = true

		require.NoError(t, BootstrapOperator(ctx, f.svc, cfg, discardLogger()))
		require.NoError(t, BootstrapOperator(ctx, f.svc, cfg, discardLogger()))

		records, err := f.svc.ListCredentials(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "admin", records[0].Username)
	})
}

func TestGenerateStrongPassword(t *testing.T) {
	for range 20 {
		pw, err := generateStrongPassword(operatorPasswordLength)
		require.NoError(t, err)
		assert.True(t, IsStrongPassword(pw), pw)
	}

	_, err := generatePassword(0)
	assert.Error(t, err)
}
