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
	"testing"
	"time"

	"github.com/sage-x-project/mpenc/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(sessionID, ownID string) *storage.GreetRecord {
	now := time.Now()
	return &storage.GreetRecord{
		OwnID:        ownID,
		SessionID:    sessionID,
		Members:      []string{ownID, "bob", "carol"},
		GroupKey:     []byte("0123456789abcdef"),
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
		LastActivity: now,
		Metadata:     map[string]interface{}{"version": 3},
	}
}

func TestGreetRecordStore(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		record := newTestRecord("session-1", "alice")
		require.NoError(t, rs.Create(ctx, record))

		loaded, err := rs.Get(ctx, "session-1")
		require.NoError(t, err)
		assert.Equal(t, record.OwnID, loaded.OwnID)
		assert.Equal(t, record.Members, loaded.Members)
		assert.Equal(t, record.GroupKey, loaded.GroupKey)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		record := newTestRecord("session-dup", "alice")
		require.NoError(t, rs.Create(ctx, record))
		assert.Error(t, rs.Create(ctx, record))
	})

	t.Run("GetNonExistent", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		_, err := rs.Get(ctx, "missing")
		assert.Error(t, err)
	})

	t.Run("GetExpired", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		record := newTestRecord("session-expired", "alice")
		record.ExpiresAt = time.Now().Add(-time.Minute)
		require.NoError(t, rs.Create(ctx, record))

		_, err := rs.Get(ctx, "session-expired")
		assert.Error(t, err)
	})

	t.Run("Update", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		record := newTestRecord("session-2", "alice")
		require.NoError(t, rs.Create(ctx, record))

		record.Members = append(record.Members, "dave")
		require.NoError(t, rs.Update(ctx, record))

		loaded, err := rs.Get(ctx, "session-2")
		require.NoError(t, err)
		assert.Len(t, loaded.Members, 4)
	})

	t.Run("UpdateNonExistent", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		record := newTestRecord("missing", "alice")
		assert.Error(t, rs.Update(ctx, record))
	})

	t.Run("Delete", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		record := newTestRecord("session-3", "alice")
		require.NoError(t, rs.Create(ctx, record))
		require.NoError(t, rs.Delete(ctx, "session-3"))

		_, err := rs.Get(ctx, "session-3")
		assert.Error(t, err)
	})

	t.Run("DeleteNonExistent", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		assert.Error(t, rs.Delete(ctx, "missing"))
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		live := newTestRecord("session-live", "alice")
		expired := newTestRecord("session-dead", "alice")
		expired.ExpiresAt = time.Now().Add(-time.Minute)

		require.NoError(t, rs.Create(ctx, live))
		require.NoError(t, rs.Create(ctx, expired))

		count, err := rs.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		_, err = rs.Get(ctx, "session-live")
		assert.NoError(t, err)
	})

	t.Run("ListByOwner", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		require.NoError(t, rs.Create(ctx, newTestRecord("s1", "alice")))
		require.NoError(t, rs.Create(ctx, newTestRecord("s2", "alice")))
		require.NoError(t, rs.Create(ctx, newTestRecord("s3", "bob")))

		records, err := rs.List(ctx, "alice", 10, 0)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("ListPagination", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		for i := 0; i < 5; i++ {
			require.NoError(t, rs.Create(ctx, newTestRecord(
				"page-"+string(rune('a'+i)), "alice")))
		}

		page, err := rs.List(ctx, "alice", 2, 0)
		require.NoError(t, err)
		assert.Len(t, page, 2)
	})

	t.Run("UpdateActivity", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		record := newTestRecord("session-4", "alice")
		record.LastActivity = time.Now().Add(-time.Hour)
		require.NoError(t, rs.Create(ctx, record))

		require.NoError(t, rs.UpdateActivity(ctx, "session-4"))

		loaded, err := rs.Get(ctx, "session-4")
		require.NoError(t, err)
		assert.True(t, loaded.LastActivity.After(record.LastActivity))
	})

	t.Run("Count", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		require.NoError(t, rs.Create(ctx, newTestRecord("c1", "alice")))
		require.NoError(t, rs.Create(ctx, newTestRecord("c2", "bob")))

		count, err := rs.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("Clear", func(t *testing.T) {
		store := NewStore()
		rs := store.GreetRecordStore()

		require.NoError(t, rs.Create(ctx, newTestRecord("clear-1", "alice")))
		store.Clear()

		count, err := rs.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("PingAndClose", func(t *testing.T) {
		store := NewStore()
		assert.NoError(t, store.Ping(ctx))
		assert.NoError(t, store.Close())
	})
}
