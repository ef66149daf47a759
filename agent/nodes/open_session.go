package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

type SessionOpener interface {
	Open(ctx context.Context, sessionID string, identity string) (contractx.Session, error)
}

func OpenSession(ctx context.Context, in *GraphState, opener SessionOpener) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	sess, err := opener.Open(ctx, in.SessionID, in.Identity)
	if err != nil {
		return nil, err
	}
	in.Session = sess
	in.SessionID = sess.ID
	return in, nil
}
