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
	// DataMessagesProcessed tracks authEncrypt/decryptVerify calls
	DataMessagesProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "data_messages",
			Name:      "processed_total",
			Help:      "Total number of data messages authenticated/encrypted or decrypted/verified",
		},
		[]string{"direction", "status"}, // outbound/inbound, success/failure
	)

	// DataMessagesRejected tracks decryptVerify rejections by reason
	DataMessagesRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "data_messages",
			Name:      "rejected_total",
			Help:      "Total number of inbound data messages rejected",
		},
		[]string{"reason"}, // unknown_author, bad_signature
	)

	// DataMessageProcessingDuration tracks authEncrypt/decryptVerify duration
	DataMessageProcessingDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "data_messages",
			Name:      "processing_duration_seconds",
			Help:      "Data message processing duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	// DataMessageSize tracks plaintext body sizes
	DataMessageSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "data_messages",
			Name:      "body_size_bytes",
			Help:      "Data message body size in bytes",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
		},
	)
)
