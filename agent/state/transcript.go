package state

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

// Transcript is the conversation history of one session. It is bound to the
// identity that opened the session and is never replayed for anyone else.
type Transcript struct {
	SessionID string           `json:"session_id"`
	Identity  string           `json:"identity"`
	Turns     []contractx.Turn `json:"turns,omitempty"`
	Version   int              `json:"version"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func NewTranscript(sessionID, identity string, now time.Time) *Transcript {
	return &Transcript{
		SessionID: sessionID,
		Identity:  strings.ToLower(strings.TrimSpace(identity)),
		Version:   1,
		UpdatedAt: now.UTC(),
	}
}

func (t *Transcript) Validate() error {
	if t == nil {
		return ErrNilTranscript
	}
	if strings.TrimSpace(t.SessionID) == "" {
		return ErrInvalidSession
	}
	if strings.TrimSpace(t.Identity) == "" {
		return fmt.Errorf("%w: transcript identity is empty", contractx.ErrValidation)
	}
	for i, turn := range t.Turns {
		switch turn.Role {
		case contractx.TurnUser, contractx.TurnAssistant, contractx.TurnObservation:
		default:
			return fmt.Errorf("%w: turn %d has role %q", contractx.ErrValidation, i, turn.Role)
		}
	}
	return nil
}

// BelongsTo reports whether identity may continue this transcript.
func (t *Transcript) BelongsTo(identity string) bool {
	return t != nil && t.Identity == strings.ToLower(strings.TrimSpace(identity))
}

func (t *Transcript) Append(now time.Time, turns ...contractx.Turn) {
	t.Turns = append(t.Turns, turns...)
	t.Touch(now)
}

func (t *Transcript) Touch(now time.Time) {
	t.UpdatedAt = now.UTC()
}

// Trim keeps at most max turns. It only cuts in front of a user turn so that
// tool calls and their observations stay together.
func (t *Transcript) Trim(max int) {
	if max <= 0 || len(t.Turns) <= max {
		return
	}
	start := len(t.Turns) - max
	for start < len(t.Turns) && t.Turns[start].Role != contractx.TurnUser {
		start++
	}
	t.Turns = append([]contractx.Turn(nil), t.Turns[start:]...)
}
