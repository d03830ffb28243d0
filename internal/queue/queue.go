package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Audit event kinds.
const (
	KindAccepted = "accepted"
	KindRejected = "rejected"
)

// Event is one audit entry for a check-in decision. Rejections are published
// too: the audit trail must show every attempt, including the ones that never
// produced a record.
type Event struct {
	Kind      string    `json:"kind"`
	ActorID   string    `json:"actor_id"`
	RecordID  string    `json:"record_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Queue is the abstraction over audit trail backends.
type Queue interface {
	Publish(ctx context.Context, evt Event) error
	Consume(ctx context.Context) (<-chan Event, error)
}

// InMemory is a channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Event
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Event, size)}
}

// Publish enqueues an event.
func (q *InMemory) Publish(ctx context.Context, evt Event) error {
	select {
	case q.ch <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case evt := <-q.ch:
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue with JSON-encoded events.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "presence:audit"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues an event.
func (q *RedisQueue) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, body).Err()
}

// Consume streams events using BRPOP. Undecodable entries are dropped rather
// than wedging the worker.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var evt Event
			if err := json.Unmarshal([]byte(res[1]), &evt); err != nil {
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
