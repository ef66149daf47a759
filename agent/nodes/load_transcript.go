package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Hotel-Concierge/agent/state"
)

// LoadTranscript restores the session's history. A transcript opened by a
// different identity is never replayed; the request starts fresh instead.
func LoadTranscript(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	tr, err := store.Load(ctx, in.SessionID)
	switch {
	case errors.Is(err, statex.ErrTranscriptNotFound):
		tr = statex.NewTranscript(in.SessionID, in.Session.Identity, in.Now)
	case err != nil:
		return nil, err
	case !tr.BelongsTo(in.Session.Identity):
		log.Warn().
			Str("session_id", in.SessionID).
			Str("identity", in.Session.Identity).
			Msg("transcript belongs to another identity; starting fresh")
		tr = statex.NewTranscript(in.SessionID, in.Session.Identity, in.Now)
	}

	in.Transcript = tr
	return in, nil
}
