package storage

import (
	"context"
)

// GreetRecordStore defines the interface for greeting-session persistence.
type GreetRecordStore interface {
	// Create creates a new record
	Create(ctx context.Context, record *GreetRecord) error

	// Get retrieves a record by session id
	Get(ctx context.Context, sessionID string) (*GreetRecord, error)

	// Update updates an existing record
	Update(ctx context.Context, record *GreetRecord) error

	// Delete deletes a record by session id
	Delete(ctx context.Context, sessionID string) error

	// DeleteExpired deletes all expired records
	DeleteExpired(ctx context.Context) (int64, error)

	// List lists all records owned by a given participant id
	List(ctx context.Context, ownID string, limit, offset int) ([]*GreetRecord, error)

	// UpdateActivity updates the last activity timestamp
	UpdateActivity(ctx context.Context, sessionID string) error

	// Count returns the total number of active records
	Count(ctx context.Context) (int64, error)
}

// Store combines the storage interfaces this package exposes.
type Store interface {
	GreetRecordStore() GreetRecordStore

	// Close closes the storage connection
	Close() error

	// Ping checks the storage connection
	Ping(ctx context.Context) error
}
