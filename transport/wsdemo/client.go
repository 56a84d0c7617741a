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

package wsdemo

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/mpenc/core/handler"
	"github.com/sage-x-project/mpenc/internal/logger"
)

const (
	clientDialTimeout  = 10 * time.Second
	clientWriteTimeout = 10 * time.Second
	pollInterval       = 50 * time.Millisecond
)

// Client connects one Handler to a Hub over a WebSocket, draining the
// handler's protocolOutQueue and messageOutQueue onto the wire and feeding
// every inbound envelope back into the handler's processMessage.
type Client struct {
	id  string
	h   *handler.Handler
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient constructs a Client for participant id, driving h over a
// connection to the Hub at wsURL (e.g. "ws://127.0.0.1:8080/ws").
func NewClient(id string, h *handler.Handler, wsURL string) *Client {
	return &Client{id: id, h: h, url: wsURL}
}

// Dial connects to the hub and registers id on the roster.
func (c *Client) Dial(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("wsdemo: parsing url: %w", err)
	}
	q := u.Query()
	q.Set("id", c.id)
	u.RawQuery = q.Encode()

	dialer := &websocket.Dialer{HandshakeTimeout: clientDialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("wsdemo: dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("wsdemo: not connected")
	}
	if err := conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(envelope{From: c.id, Text: text})
}

// Pump runs until ctx is cancelled or the connection drops: it reads
// inbound envelopes and hands them to the handler, and after every inbound
// message flushes any frames the handler queued in response (greet replies,
// query requests).
func (c *Client) Pump(ctx context.Context, channelMembers func() []string) error {
	if err := c.flushOutbound(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		for {
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				errCh <- fmt.Errorf("wsdemo: connection closed")
				return
			}

			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				errCh <- err
				return
			}

			if err := c.h.ProcessMessage(env.From, env.Text, channelMembers()); err != nil {
				logger.Warn("wsdemo client processMessage failed", logger.String("from", env.From), logger.Error(err))
			}
			if err := c.flushOutbound(); err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// flushOutbound sends every frame currently queued in the handler's
// protocolOutQueue and messageOutQueue, in the order Handler enqueued them.
func (c *Client) flushOutbound() error {
	for len(c.h.ProtocolOutQueue) > 0 {
		pt := c.h.ProtocolOutQueue[0]
		c.h.ProtocolOutQueue = c.h.ProtocolOutQueue[1:]
		if err := c.send(pt); err != nil {
			return err
		}
	}
	for len(c.h.MessageOutQueue) > 0 {
		pt := c.h.MessageOutQueue[0]
		c.h.MessageOutQueue = c.h.MessageOutQueue[1:]
		if err := c.send(pt); err != nil {
			return err
		}
	}
	return nil
}

// Send encodes and queues body as a data message, then flushes it to the
// wire immediately.
func (c *Client) Send(body string) error {
	if err := c.h.Send(body); err != nil {
		return err
	}
	return c.flushOutbound()
}

// Start proposes a session with others, then flushes the resulting greet
// message to the wire.
func (c *Client) Start(others []string) error {
	if err := c.h.Start(others); err != nil {
		return err
	}
	return c.flushOutbound()
}

var _ = pollInterval // reserved for a future polling-based Pump variant
