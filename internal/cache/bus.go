// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message announces that a node changed html pages.
type Message struct {
	Node   string    `json:"node"`
	PageID int64     `json:"page_id,omitempty"`
	Reason string    `json:"reason"`
	SentAt time.Time `json:"sent_at"`
}

// Bus carries invalidation messages between nodes sharing a database.
type Bus interface {
	// Publish announces a change to peers.
	Publish(ctx context.Context, pageID int64, reason string) error
	// Subscribe calls handler for every message from another node and blocks
	// until ctx is done.
	Subscribe(ctx context.Context, handler func(Message)) error
	Close() error
}

// NopBus is used when the service runs as a single node.
type NopBus struct{}

// Publish does nothing.
func (NopBus) Publish(context.Context, int64, string) error { return nil }

// Subscribe blocks until ctx is done.
func (NopBus) Subscribe(ctx context.Context, _ func(Message)) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close does nothing.
func (NopBus) Close() error { return nil }

// RedisBusOptions configures the Redis invalidation bus.
type RedisBusOptions struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379/0)
	URL string

	// Channel is the pub/sub channel name
	Channel string

	// ConnectTimeout is the timeout for establishing a connection
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// DefaultRedisBusOptions returns sensible defaults.
func DefaultRedisBusOptions() RedisBusOptions {
	return RedisBusOptions{
		Channel:        "htmlpage:invalidate",
		ConnectTimeout: 5 * time.Second,
	}
}

// RedisBus publishes invalidations over Redis pub/sub.
type RedisBus struct {
	client  *redis.Client
	channel string
	node    string
	logger  *slog.Logger
	closed  atomic.Bool
}

// NewRedisBus connects to Redis and returns a bus with a fresh node id.
func NewRedisBus(opts RedisBusOptions) (*RedisBus, error) {
	if opts.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	if opts.Channel == "" {
		opts.Channel = DefaultRedisBusOptions().Channel
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultRedisBusOptions().ConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisBus{
		client:  client,
		channel: opts.Channel,
		node:    uuid.NewString(),
		logger:  opts.Logger,
	}, nil
}

// Node returns this process's node id.
func (b *RedisBus) Node() string {
	return b.node
}

// Publish sends an invalidation message.
func (b *RedisBus) Publish(ctx context.Context, pageID int64, reason string) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	payload, err := b.encode(pageID, reason, time.Now())
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe listens on the channel until ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context, handler func(Message)) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			msg, accept := b.decode(m.Payload)
			if accept {
				handler(msg)
			}
		}
	}
}

// Close closes the Redis connection.
func (b *RedisBus) Close() error {
	if b.closed.CompareAndSwap(false, true) {
		return b.client.Close()
	}
	return nil
}

func (b *RedisBus) encode(pageID int64, reason string, now time.Time) (string, error) {
	data, err := json.Marshal(Message{Node: b.node, PageID: pageID, Reason: reason, SentAt: now})
	if err != nil {
		return "", fmt.Errorf("encoding invalidation: %w", err)
	}
	return string(data), nil
}

// decode parses a payload and reports whether it came from another node.
func (b *RedisBus) decode(payload string) (Message, bool) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.logger.Warn("ignoring malformed invalidation message", "category", "cache", "error", err)
		return Message{}, false
	}
	if msg.Node == b.node {
		return Message{}, false
	}
	return msg, true
}
