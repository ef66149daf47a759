package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Hotel-Concierge/agent/state"
)

// PersistTranscript appends this request's turns and saves. A failed save
// does not fail the reply: the turn already happened.
func PersistTranscript(ctx context.Context, in *GraphState, store statex.Store, maxTurns int) (*GraphState, error) {
	if in == nil || in.Transcript == nil {
		return nil, fmt.Errorf("%w: graph transcript is nil", contractx.ErrValidation)
	}

	in.Transcript.Append(in.Now, in.Result.Turns...)
	in.Transcript.Trim(maxTurns)

	if err := ctx.Err(); err != nil {
		return in, nil
	}
	if err := store.Save(ctx, in.Transcript); err != nil {
		log.Error().Err(err).Str("session_id", in.SessionID).Msg("save transcript failed")
	}
	return in, nil
}
