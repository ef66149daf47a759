package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

// FinalizeReply turns the loop result into the caller's reply. A failed run
// is returned as its error; a run that stopped without an answer gets the
// fallback text and is marked degraded.
func FinalizeReply(in *GraphState, fallback string) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Result.State == LoopFailed {
		if in.Result.Err != nil {
			return GraphOutput{}, in.Result.Err
		}
		return GraphOutput{}, fmt.Errorf("%w: request failed", contractx.ErrUnreachableService)
	}

	out := GraphOutput{
		SessionID:  in.SessionID,
		Name:       in.Session.Name,
		Role:       in.Session.Role,
		Iterations: in.Result.Iterations,
	}

	reply := strings.TrimSpace(in.Result.Answer)
	if reply == "" {
		out.Reply = fallback
		out.Degraded = true
		out.Reason = in.Result.Outcome
		return out, nil
	}
	out.Reply = reply
	return out, nil
}
