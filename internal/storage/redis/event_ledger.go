// Package redis provides a Redis-backed dedupe ledger for inbound webhooks.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	r "github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "hookqueue:inbound:"

	defaultPending = 30 * time.Second
)

// EventLedger reserves inbound event IDs with SETNX. A reservation lives for
// the pending TTL until its job is enqueued, then for the retention window,
// so no pruning is needed.
type EventLedger struct {
	rdb       r.Cmdable
	retention time.Duration
	pending   time.Duration
}

func NewEventLedger(rdb r.Cmdable, retention, pending time.Duration) *EventLedger {
	if pending <= 0 {
		pending = defaultPending
	}
	return &EventLedger{rdb: rdb, retention: retention, pending: pending}
}

// NewClient builds a client and checks that the server answers.
func NewClient(ctx context.Context, addr, password string, db int) (*r.Client, error) {
	rdb := r.NewClient(&r.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

// Admit runs enqueue only when eventID was not held. A failed enqueue frees the
// key; an abandoned one leaves it to expire after the pending TTL. When the
// job is enqueued but the key cannot be extended, Admit returns the job ID,
// true and the error.
func (l *EventLedger) Admit(ctx context.Context, eventID, eventType string, enqueue func(context.Context) (string, error)) (string, bool, error) {
	key := keyPrefix + eventID
	ok, err := l.rdb.SetNX(ctx, key, eventType, l.pending).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserve inbound event: %w", err)
	}
	if !ok {
		return "", false, nil
	}

	jobID, err := enqueue(ctx)
	if err != nil {
		if derr := l.rdb.Del(context.WithoutCancel(ctx), key).Err(); derr != nil {
			err = errors.Join(err, fmt.Errorf("release inbound event: %w", derr))
		}
		return "", false, err
	}

	if err := l.rdb.Expire(context.WithoutCancel(ctx), key, l.retention).Err(); err != nil {
		return jobID, true, fmt.Errorf("confirm inbound event: %w", err)
	}
	return jobID, true, nil
}
