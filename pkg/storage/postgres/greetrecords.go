// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sage-x-project/mpenc/pkg/storage"
)

// GreetRecordStore implements storage.GreetRecordStore for PostgreSQL
type GreetRecordStore struct {
	db *pgxpool.Pool
}

// Create creates a new greeting record
func (s *GreetRecordStore) Create(ctx context.Context, record *storage.GreetRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO greet_records (session_id, own_id, members, group_key, created_at, expires_at, last_activity, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.Exec(ctx, query,
		record.SessionID,
		record.OwnID,
		record.Members,
		record.GroupKey,
		record.CreatedAt,
		record.ExpiresAt,
		record.LastActivity,
		metadata,
	)

	if err != nil {
		return fmt.Errorf("failed to create greet record: %w", err)
	}

	return nil
}

// Get retrieves a record by session id
func (s *GreetRecordStore) Get(ctx context.Context, sessionID string) (*storage.GreetRecord, error) {
	query := `
		SELECT session_id, own_id, members, group_key, created_at, expires_at, last_activity, metadata
		FROM greet_records
		WHERE session_id = $1 AND expires_at > NOW()
	`

	var record storage.GreetRecord
	var metadataJSON []byte

	err := s.db.QueryRow(ctx, query, sessionID).Scan(
		&record.SessionID,
		&record.OwnID,
		&record.Members,
		&record.GroupKey,
		&record.CreatedAt,
		&record.ExpiresAt,
		&record.LastActivity,
		&metadataJSON,
	)

	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("greet record not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get greet record: %w", err)
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &record, nil
}

// Update updates an existing record
func (s *GreetRecordStore) Update(ctx context.Context, record *storage.GreetRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE greet_records
		SET members = $1, group_key = $2, expires_at = $3, last_activity = $4, metadata = $5
		WHERE session_id = $6
	`

	result, err := s.db.Exec(ctx, query,
		record.Members,
		record.GroupKey,
		record.ExpiresAt,
		record.LastActivity,
		metadata,
		record.SessionID,
	)

	if err != nil {
		return fmt.Errorf("failed to update greet record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("greet record not found: %s", record.SessionID)
	}

	return nil
}

// Delete deletes a record by session id
func (s *GreetRecordStore) Delete(ctx context.Context, sessionID string) error {
	query := `DELETE FROM greet_records WHERE session_id = $1`

	result, err := s.db.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete greet record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("greet record not found: %s", sessionID)
	}

	return nil
}

// DeleteExpired deletes all expired records
func (s *GreetRecordStore) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM greet_records WHERE expires_at <= NOW()`

	result, err := s.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired greet records: %w", err)
	}

	return result.RowsAffected(), nil
}

// List lists all records owned by a given participant id
func (s *GreetRecordStore) List(ctx context.Context, ownID string, limit, offset int) ([]*storage.GreetRecord, error) {
	query := `
		SELECT session_id, own_id, members, group_key, created_at, expires_at, last_activity, metadata
		FROM greet_records
		WHERE own_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, ownID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list greet records: %w", err)
	}
	defer rows.Close()

	var records []*storage.GreetRecord
	for rows.Next() {
		var record storage.GreetRecord
		var metadataJSON []byte

		err := rows.Scan(
			&record.SessionID,
			&record.OwnID,
			&record.Members,
			&record.GroupKey,
			&record.CreatedAt,
			&record.ExpiresAt,
			&record.LastActivity,
			&metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan greet record: %w", err)
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating greet records: %w", err)
	}

	return records, nil
}

// UpdateActivity updates the last activity timestamp
func (s *GreetRecordStore) UpdateActivity(ctx context.Context, sessionID string) error {
	query := `UPDATE greet_records SET last_activity = $1 WHERE session_id = $2`

	result, err := s.db.Exec(ctx, query, time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("greet record not found: %s", sessionID)
	}

	return nil
}

// Count returns the total number of active records
func (s *GreetRecordStore) Count(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM greet_records WHERE expires_at > NOW()`

	var count int64
	err := s.db.QueryRow(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count greet records: %w", err)
	}

	return count, nil
}
