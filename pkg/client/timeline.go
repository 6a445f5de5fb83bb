package client

import (
	"sync"
)

// Timeline is the ordered message list of one room. Messages arrive both as
// send responses and as broadcasts; each id is kept once whichever path
// delivers it first.
type Timeline struct {
	mu       sync.Mutex
	messages []Message
	ids      map[string]struct{}
	onChange func([]Message)
}

// NewTimeline returns an empty timeline. onChange, when set, receives a
// snapshot after every change and is called without the lock held.
func NewTimeline(onChange func([]Message)) *Timeline {
	return &Timeline{
		ids:      make(map[string]struct{}),
		onChange: onChange,
	}
}

// Insert appends msg unless its id is already present. It reports whether
// the timeline changed.
func (t *Timeline) Insert(msg Message) bool {
	t.mu.Lock()
	if _, ok := t.ids[msg.ID]; ok {
		t.mu.Unlock()
		return false
	}
	t.ids[msg.ID] = struct{}{}
	t.messages = append(t.messages, msg)
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snapshot)
	return true
}

// Load replaces the contents with history, given oldest first. Messages
// already merged from the live path that history does not contain and that
// are not older than its last entry are kept after it, so a broadcast received
// while history was in flight is not lost.
func (t *Timeline) Load(history []Message) {
	t.mu.Lock()

	messages := make([]Message, 0, len(history)+len(t.messages))
	ids := make(map[string]struct{}, len(history)+len(t.messages))
	for _, msg := range history {
		if _, ok := ids[msg.ID]; ok {
			continue
		}
		ids[msg.ID] = struct{}{}
		messages = append(messages, msg)
	}

	for _, msg := range t.messages {
		if _, ok := ids[msg.ID]; ok {
			continue
		}
		if len(history) > 0 && msg.CreatedAt.Before(history[len(history)-1].CreatedAt) {
			continue
		}
		ids[msg.ID] = struct{}{}
		messages = append(messages, msg)
	}

	t.messages = messages
	t.ids = ids
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snapshot)
}

// Reset empties the timeline, as when switching rooms.
func (t *Timeline) Reset() {
	t.mu.Lock()
	t.messages = nil
	t.ids = make(map[string]struct{})
	t.mu.Unlock()

	t.notify([]Message{})
}

func (t *Timeline) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *Timeline) snapshotLocked() []Message {
	return append([]Message(nil), t.messages...)
}

func (t *Timeline) notify(snapshot []Message) {
	if t.onChange != nil {
		t.onChange(snapshot)
	}
}
