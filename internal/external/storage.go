// Package external defines the contract boundary between the core packages
// (registry, scheduler, orchestrator, gate, plan, planrunner) and everything
// spec.md names as an external collaborator: the CDP transport, the
// perceiver trifecta, the element resolver, and the session/event/artifact
// storage backend. Only internal/external/cdpws carries a concrete
// implementation (a demo/test JSON-RPC-over-websocket client); everything
// else here is a trait contract the core consumes without committing to one
// backend, per spec.md §1's explicit Non-goals.
package external

import "context"

// BrowserStorage is the key-value persistence contract for session state,
// state-center events, and artifacts, scoped by tenant. No concrete
// implementation lives in this module: spec.md §1 calls the storage backend
// out of scope, "specified only by the interfaces the core consumes". A
// production implementation (Redis, Postgres, a local KV store) is a
// deployment concern external to this repository.
type BrowserStorage interface {
	// Get returns the value stored under key within tenant, or ok=false if
	// absent.
	Get(ctx context.Context, tenant, key string) (value []byte, ok bool, err error)

	// Put stores value under key within tenant, replacing any prior value.
	Put(ctx context.Context, tenant, key string, value []byte) error

	// Delete removes key within tenant. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, tenant, key string) error

	// List returns every key within tenant whose name has the given prefix,
	// used to enumerate a task's persisted artifacts or a session's events.
	List(ctx context.Context, tenant, prefix string) ([]string, error)
}
