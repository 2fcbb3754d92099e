package settings

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"
)

// snapshot is an immutable view of the settings table.
type snapshot struct {
	updatedAt time.Time
	values    map[string]json.RawMessage
}

var current atomic.Pointer[snapshot]

func init() {
	current.Store(&snapshot{values: map[string]json.RawMessage{}})
}

// StoreDBConfig swaps in a new snapshot. Blank keys are dropped and values are
// copied so callers may reuse their buffers.
func StoreDBConfig(updatedAt time.Time, values map[string]json.RawMessage) {
	next := &snapshot{
		updatedAt: updatedAt.UTC(),
		values:    make(map[string]json.RawMessage, len(values)),
	}
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		next.values[key] = cloneRaw(v)
	}
	current.Store(next)
}

// DBConfigUpdatedAt returns the newest updated_at seen in the last refresh.
func DBConfigUpdatedAt() time.Time {
	return load().updatedAt
}

// DBConfigValue returns a copy of the raw JSON stored under key.
func DBConfigValue(key string) (json.RawMessage, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false
	}
	val, ok := load().values[key]
	if !ok {
		return nil, false
	}
	return cloneRaw(val), true
}

// DBConfigAll returns a copy of every stored value.
func DBConfigAll() map[string]json.RawMessage {
	snap := load()
	out := make(map[string]json.RawMessage, len(snap.values))
	for k, v := range snap.values {
		out[k] = cloneRaw(v)
	}
	return out
}

func load() *snapshot {
	if snap := current.Load(); snap != nil && snap.values != nil {
		return snap
	}
	return &snapshot{values: map[string]json.RawMessage{}}
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
