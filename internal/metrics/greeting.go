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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GreetingsStarted tracks membership operations started
	GreetingsStarted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "greetings",
			Name:      "started_total",
			Help:      "Total number of greeting operations started",
		},
		[]string{"operation"}, // start, include, exclude, refresh, quit
	)

	// GreetingsCompleted tracks greetings that reached a terminal state
	GreetingsCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "greetings",
			Name:      "completed_total",
			Help:      "Total number of greeting operations completed",
		},
		[]string{"result"}, // ready, quit
	)

	// GreetingsRejected tracks inbound greet packets rejected by category
	GreetingsRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "greetings",
			Name:      "rejected_total",
			Help:      "Total number of inbound greet packets rejected by error kind",
		},
		[]string{"kind"}, // malformed, bad_signature, not_member, last_man_standing
	)

	// GreetingStageDuration tracks per-stage processing duration
	GreetingStageDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "greetings",
			Name:      "stage_duration_seconds",
			Help:      "Greeting state machine stage duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"stage"}, // cliques_upflow, cliques_downflow, aske_upflow, aske_downflow
	)
)
