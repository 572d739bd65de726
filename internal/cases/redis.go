package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fraud-workbench/internal/anchor"

	"github.com/redis/go-redis/v9"
)

// DefaultMirrorPrefix namespaces mirrored case keys.
const DefaultMirrorPrefix = "workbench:case:"

// RedisMirror stores confirmed notes (a list per key) and the current action
// (a string per key) in Redis.
type RedisMirror struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisMirror creates a mirror. A zero ttl keeps entries indefinitely.
func NewRedisMirror(client redis.Cmdable, prefix string, ttl time.Duration) *RedisMirror {
	if prefix == "" {
		prefix = DefaultMirrorPrefix
	}
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

func (m *RedisMirror) notesKey(key anchor.Key) string {
	return m.prefix + "notes:" + string(key)
}

func (m *RedisMirror) actionKey(key anchor.Key) string {
	return m.prefix + "action:" + string(key)
}

// AppendNote implements Mirror.
func (m *RedisMirror) AppendNote(ctx context.Context, key anchor.Key, n Note) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode note: %w", err)
	}
	k := m.notesKey(key)
	if err := m.client.RPush(ctx, k, data).Err(); err != nil {
		return err
	}
	if m.ttl > 0 {
		return m.client.Expire(ctx, k, m.ttl).Err()
	}
	return nil
}

// SetAction implements Mirror.
func (m *RedisMirror) SetAction(ctx context.Context, key anchor.Key, a Action) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode action: %w", err)
	}
	return m.client.Set(ctx, m.actionKey(key), data, m.ttl).Err()
}

// Load implements Mirror.
func (m *RedisMirror) Load(ctx context.Context, key anchor.Key) ([]Note, *Action, error) {
	raw, err := m.client.LRange(ctx, m.notesKey(key), 0, -1).Result()
	if err != nil {
		return nil, nil, err
	}
	notes := make([]Note, 0, len(raw))
	for _, r := range raw {
		var n Note
		if err := json.Unmarshal([]byte(r), &n); err != nil {
			return nil, nil, fmt.Errorf("failed to decode note: %w", err)
		}
		notes = append(notes, n)
	}

	val, err := m.client.Get(ctx, m.actionKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return notes, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var a Action
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return nil, nil, fmt.Errorf("failed to decode action: %w", err)
	}
	return notes, &a, nil
}
