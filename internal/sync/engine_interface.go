package sync

import (
	"context"
	"time"
)

// SyncEngineInterface defines the interface for sync engine operations.
// This interface allows for mocking in tests and alternative implementations.
type SyncEngineInterface interface {
	// Sync performs one delta cycle.
	// Returns the cycle statistics or an error if the cycle fails.
	Sync(ctx context.Context) (*SyncResult, error)

	// SetEventHandler sets the event handler for sync notifications.
	SetEventHandler(handler SyncEventHandler)

	// Status returns the current sync status.
	Status() SyncStatus

	// LastSync returns the time of the last successful cycle.
	LastSync() *time.Time

	// PendingChanges returns the number of changes awaiting the server.
	PendingChanges(ctx context.Context) (int, error)

	// LastError returns the error of the last cycle.
	LastError() error
}

var _ SyncEngineInterface = (*SyncEngine)(nil)
