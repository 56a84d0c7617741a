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

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sage-x-project/mpenc/pkg/storage"
)

// Store implements the storage.Store interface with in-memory storage
type Store struct {
	records   map[string]*storage.GreetRecord
	recordsMu sync.RWMutex

	greetRecordStore *GreetRecordStore
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	s := &Store{
		records: make(map[string]*storage.GreetRecord),
	}

	s.greetRecordStore = &GreetRecordStore{store: s}

	return s
}

// GreetRecordStore returns the greeting-record store
func (s *Store) GreetRecordStore() storage.GreetRecordStore {
	return s.greetRecordStore
}

// Close closes the store (no-op for memory store)
func (s *Store) Close() error {
	return nil
}

// Ping checks the store (always succeeds for memory store)
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Clear removes all data (useful for testing)
func (s *Store) Clear() {
	s.recordsMu.Lock()
	s.records = make(map[string]*storage.GreetRecord)
	s.recordsMu.Unlock()
}

// GreetRecordStore implements storage.GreetRecordStore
type GreetRecordStore struct {
	store *Store
}

func (s *GreetRecordStore) Create(ctx context.Context, record *storage.GreetRecord) error {
	s.store.recordsMu.Lock()
	defer s.store.recordsMu.Unlock()

	if _, exists := s.store.records[record.SessionID]; exists {
		return fmt.Errorf("greet record already exists: %s", record.SessionID)
	}

	recordCopy := *record
	if record.Members != nil {
		recordCopy.Members = append([]string(nil), record.Members...)
	}
	if record.GroupKey != nil {
		recordCopy.GroupKey = append([]byte(nil), record.GroupKey...)
	}
	if record.Metadata != nil {
		recordCopy.Metadata = make(map[string]interface{}, len(record.Metadata))
		for k, v := range record.Metadata {
			recordCopy.Metadata[k] = v
		}
	}

	s.store.records[record.SessionID] = &recordCopy
	return nil
}

func (s *GreetRecordStore) Get(ctx context.Context, sessionID string) (*storage.GreetRecord, error) {
	s.store.recordsMu.RLock()
	defer s.store.recordsMu.RUnlock()

	record, exists := s.store.records[sessionID]
	if !exists {
		return nil, fmt.Errorf("greet record not found: %s", sessionID)
	}

	if time.Now().After(record.ExpiresAt) {
		return nil, fmt.Errorf("greet record expired: %s", sessionID)
	}

	recordCopy := *record
	return &recordCopy, nil
}

func (s *GreetRecordStore) Update(ctx context.Context, record *storage.GreetRecord) error {
	s.store.recordsMu.Lock()
	defer s.store.recordsMu.Unlock()

	if _, exists := s.store.records[record.SessionID]; !exists {
		return fmt.Errorf("greet record not found: %s", record.SessionID)
	}

	recordCopy := *record
	s.store.records[record.SessionID] = &recordCopy
	return nil
}

func (s *GreetRecordStore) Delete(ctx context.Context, sessionID string) error {
	s.store.recordsMu.Lock()
	defer s.store.recordsMu.Unlock()

	if _, exists := s.store.records[sessionID]; !exists {
		return fmt.Errorf("greet record not found: %s", sessionID)
	}

	delete(s.store.records, sessionID)
	return nil
}

func (s *GreetRecordStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.store.recordsMu.Lock()
	defer s.store.recordsMu.Unlock()

	now := time.Now()
	var count int64

	for id, record := range s.store.records {
		if now.After(record.ExpiresAt) {
			delete(s.store.records, id)
			count++
		}
	}

	return count, nil
}

func (s *GreetRecordStore) List(ctx context.Context, ownID string, limit, offset int) ([]*storage.GreetRecord, error) {
	s.store.recordsMu.RLock()
	defer s.store.recordsMu.RUnlock()

	var records []*storage.GreetRecord
	now := time.Now()

	for _, record := range s.store.records {
		if record.OwnID == ownID && now.Before(record.ExpiresAt) {
			recordCopy := *record
			records = append(records, &recordCopy)
		}
	}

	if offset >= len(records) {
		return []*storage.GreetRecord{}, nil
	}

	end := offset + limit
	if end > len(records) {
		end = len(records)
	}

	return records[offset:end], nil
}

func (s *GreetRecordStore) UpdateActivity(ctx context.Context, sessionID string) error {
	s.store.recordsMu.Lock()
	defer s.store.recordsMu.Unlock()

	record, exists := s.store.records[sessionID]
	if !exists {
		return fmt.Errorf("greet record not found: %s", sessionID)
	}

	record.LastActivity = time.Now()
	return nil
}

func (s *GreetRecordStore) Count(ctx context.Context) (int64, error) {
	s.store.recordsMu.RLock()
	defer s.store.recordsMu.RUnlock()

	now := time.Now()
	var count int64

	for _, record := range s.store.records {
		if now.Before(record.ExpiresAt) {
			count++
		}
	}

	return count, nil
}
