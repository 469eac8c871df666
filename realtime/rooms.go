package realtime

import "sync"

// roomKey identifies a join intent by kind tag and entity id.
type roomKey struct {
	kind string
	id   string
}

// roomTracker holds reference-counted join intents. Multiple views can hold
// the same room at once; the join frame is sent on the 0->1 transition and
// the leave frame on 1->0. Intents survive disconnects so the client can
// re-issue joins after a reconnect (the backend keeps no per-connection
// membership across disconnects).
type roomTracker struct {
	mu   sync.Mutex
	refs map[roomKey]int
}

func newRoomTracker() *roomTracker {
	return &roomTracker{refs: make(map[roomKey]int)}
}

// join increments the refcount and reports whether this is the first holder.
func (t *roomTracker) join(k roomKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refs[k]++
	return t.refs[k] == 1
}

// leave decrements the refcount and reports whether the room was released.
// Leaving a room that was never joined is a no-op.
func (t *roomTracker) leave(k roomKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.refs[k]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(t.refs, k)
		return true
	}
	t.refs[k] = n - 1
	return false
}

// held returns all rooms with outstanding join intents.
func (t *roomTracker) held() []roomKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]roomKey, 0, len(t.refs))
	for k := range t.refs {
		keys = append(keys, k)
	}
	return keys
}
