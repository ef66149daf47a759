package orchestratornode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Hotel-Concierge/agent/state"
)

var (
	ErrInvalidMessage  = errors.New("message is empty")
	ErrInvalidIdentity = errors.New("identity is empty")
)

type GraphInput struct {
	SessionID string
	Identity  string
	Text      string
}

type GraphOutput struct {
	Reply      string
	SessionID  string
	Name       string
	Role       contractx.Role
	Iterations int
	// Degraded is set when the reply is the fallback message rather than a
	// model answer; Reason names why.
	Degraded bool
	Reason   string
}

type GraphState struct {
	SessionID string
	Identity  string
	Text      string
	Now       time.Time

	Session    contractx.Session
	Transcript *statex.Transcript

	Result LoopResult
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	identity := strings.TrimSpace(in.Identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: strings.TrimSpace(in.SessionID),
		Identity:  identity,
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}
