// Package history keeps the in-memory conversation transcript of one chat
// session. Nothing is persisted across process restarts.
package history

import (
	"time"

	"github.com/google/uuid"
)

// Transcript is an append-only, ordered list of turns. It is owned by a
// single goroutine and is not safe for concurrent use.
type Transcript struct {
	id        string
	startedAt time.Time
	turns     []Turn
	now       func() time.Time
}

// NewTranscript creates an empty transcript with a fresh session id
func NewTranscript() *Transcript {
	return &Transcript{
		id:        uuid.NewString(),
		startedAt: time.Now(),
		turns:     []Turn{},
		now:       time.Now,
	}
}

// ID identifies the session in logs
func (t *Transcript) ID() string {
	return t.id
}

// StartedAt returns when the transcript was created or last reset
func (t *Transcript) StartedAt() time.Time {
	return t.startedAt
}

// Append adds a turn at the end of the transcript
func (t *Transcript) Append(role Role, content string) Turn {
	turn := Turn{
		Role:      role,
		Content:   content,
		Timestamp: t.now(),
	}
	t.turns = append(t.turns, turn)
	return turn
}

// Turns returns a copy of all turns in conversation order
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Last returns the most recent turn
func (t *Transcript) Last() (Turn, bool) {
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

// Reset empties the transcript. Safe to call on an empty transcript.
func (t *Transcript) Reset() {
	t.turns = []Turn{}
	t.startedAt = t.now()
}
