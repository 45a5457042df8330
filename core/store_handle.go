package core

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// provisionTimeout bounds one shared EnsureSchema call.
const provisionTimeout = 30 * time.Second

// StoreHandle is the process-wide reference to schema-provisioned storage.
// The schema is provisioned lazily on first use; concurrent first callers share
// a single provisioning call. The shared call is detached from the caller that
// started it, so one cancelled request cannot fail the others waiting on it.
// A failed attempt is not remembered, so the next caller tries again.
type StoreHandle struct {
	store  CredentialStore
	logger Logger
	group  singleflight.Group
	ready  atomic.Bool
}

// NewStoreHandle wraps store. With autoProvision false the schema is assumed
// to exist and EnsureSchema is never called.
func NewStoreHandle(store CredentialStore, logger Logger, autoProvision bool) *StoreHandle {
	h := &StoreHandle{store: store, logger: logger}
	h.ready.Store(!autoProvision)
	return h
}

// Ready provisions the schema if needed and returns the store.
func (h *StoreHandle) Ready(ctx context.Context) (CredentialStore, error) {
	if h.ready.Load() {
		return h.store, nil
	}

	_, err, shared := h.group.Do("schema", func() (any, error) {
		if h.ready.Load() {
			return nil, nil
		}
		h.logger.Info("provisioning credential schema")
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), provisionTimeout)
		defer cancel()
		if err := h.store.EnsureSchema(pctx); err != nil {
			return nil, err
		}
		h.ready.Store(true)
		h.logger.Info("credential schema ready")
		return nil, nil
	})
	if err != nil {
		h.logger.Debug("credential schema provisioning failed", "shared", shared, "error", err)
		return nil, err
	}
	return h.store, nil
}

// Provisioned reports whether the schema is known to exist.
func (h *StoreHandle) Provisioned() bool {
	return h.ready.Load()
}
