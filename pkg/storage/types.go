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

package storage

import "time"

// GreetRecord is a host-side persisted snapshot of a READY greeting
// session. The engine itself treats a GreetStore as an in-memory value and
// never defines an on-disk format; this is one concrete format a host
// application may choose to use across process restarts.
type GreetRecord struct {
	OwnID        string    `json:"own_id"`
	SessionID    string    `json:"session_id"`
	Members      []string  `json:"members"`
	GroupKey     []byte    `json:"group_key"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
