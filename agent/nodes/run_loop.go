package orchestratornode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	metricsx "github.com/tanpawarit/Chative-Hotel-Concierge/pkg/metrics"
	tokensx "github.com/tanpawarit/Chative-Hotel-Concierge/pkg/tokens"
)

type LoopState string

const (
	LoopStart     LoopState = "start"
	LoopDeciding  LoopState = "deciding"
	LoopExecuting LoopState = "executing"
	LoopDone      LoopState = "done"
	LoopFailed    LoopState = "failed"
)

const (
	OutcomeAnswered       = "answered"
	OutcomeIterationLimit = "iteration_limit"
	OutcomeCancelled      = "cancelled"
	OutcomeUnreachable    = "unreachable"
	OutcomeError          = "error"
)

const (
	kindRejected      = "rejected"
	emptyAnswerNotice = "validation: the final answer was empty. Reply to the user in plain text or call a tool."
)

type LoopConfig struct {
	MaxIterations      int
	MaxActionsPerRound int
}

// Loop drives one request through decide/execute rounds until the decider
// answers or the round limit is hit. Actions run one at a time, in the order
// proposed, and each is re-checked by the tool gateway before it runs.
type Loop struct {
	Decider contractx.Decider
	Tools   contractx.ToolGateway
	Budget  *tokensx.Budget
	Metrics *metricsx.Recorder
	Config  LoopConfig
	Now     func() time.Time
}

type LoopResult struct {
	State      LoopState
	Outcome    string
	Answer     string
	Iterations int
	// Turns holds what this request adds to the transcript. Without an answer
	// it is only the user turn, so a half-finished round is never replayed.
	Turns []contractx.Turn
	Err   error
}

func RunLoop(ctx context.Context, in *GraphState, loop *Loop) (*GraphState, error) {
	if in == nil || in.Transcript == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	res := loop.Run(ctx, in.Session, in.Transcript.Turns, in.Text)
	in.Result = res
	loop.Metrics.ObserveRun(string(in.Session.Role), res.Outcome, res.Iterations)

	ev := log.Info()
	if res.Err != nil {
		ev = log.Warn().Err(res.Err)
	}
	ev.Str("session_id", in.SessionID).
		Str("role", string(in.Session.Role)).
		Str("outcome", res.Outcome).
		Int("iterations", res.Iterations).
		Msg("request finished")
	return in, nil
}

func (l *Loop) Run(ctx context.Context, sess contractx.Session, history []contractx.Turn, text string) LoopResult {
	now := l.Now
	if now == nil {
		now = time.Now
	}
	maxIterations := l.Config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 1
	}
	maxActions := l.Config.MaxActionsPerRound
	if maxActions <= 0 {
		maxActions = 1
	}

	userTurn := contractx.Turn{Role: contractx.TurnUser, Content: text}
	conversation := make([]contractx.Turn, 0, len(history)+8)
	conversation = append(conversation, history...)
	conversation = append(conversation, userTurn)
	fresh := len(conversation) - 1

	var (
		state      = LoopStart
		iterations int
		pending    []contractx.Action
	)

	fail := func(err error) LoopResult {
		return LoopResult{
			State:      LoopFailed,
			Outcome:    outcomeOf(err),
			Iterations: iterations,
			Turns:      []contractx.Turn{userTurn},
			Err:        err,
		}
	}

	for {
		switch state {
		case LoopStart:
			state = LoopDeciding

		case LoopDeciding:
			if iterations >= maxIterations {
				return LoopResult{
					State:      LoopDone,
					Outcome:    OutcomeIterationLimit,
					Iterations: iterations,
					Turns:      []contractx.Turn{userTurn},
					Err:        contractx.ErrIterationLimitExceeded,
				}
			}
			if err := ctx.Err(); err != nil {
				return fail(err)
			}

			iterations++
			started := time.Now()
			decision, err := l.Decider.Decide(ctx, contractx.DecisionRequest{
				Session:      sess,
				Conversation: conversation,
				Today:        now(),
			})
			l.Metrics.ObserveDecision(time.Since(started), err)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return fail(ctxErr)
				}
				if !errors.Is(err, contractx.ErrUnreachableService) {
					err = fmt.Errorf("%w: %w", contractx.ErrUnreachableService, err)
				}
				return fail(err)
			}

			if decision.IsFinal() {
				answer := strings.TrimSpace(decision.Answer)
				if answer == "" {
					conversation = append(conversation, contractx.Turn{Role: contractx.TurnObservation, Content: emptyAnswerNotice})
					continue
				}
				conversation = append(conversation, contractx.Turn{Role: contractx.TurnAssistant, Content: answer})
				return LoopResult{
					State:      LoopDone,
					Outcome:    OutcomeAnswered,
					Answer:     answer,
					Iterations: iterations,
					Turns:      append([]contractx.Turn(nil), conversation[fresh:]...),
				}
			}

			pending = decision.Actions
			conversation = append(conversation, contractx.Turn{Role: contractx.TurnAssistant, Actions: pending})
			state = LoopExecuting

		case LoopExecuting:
			for i, action := range pending {
				if err := ctx.Err(); err != nil {
					return fail(err)
				}

				var result contractx.ToolResult
				if i >= maxActions {
					result = contractx.ToolResult{
						Tool:  action.Tool,
						Error: fmt.Sprintf("rejected: at most %d actions run per round; propose it again if still needed", maxActions),
						Kind:  kindRejected,
					}
				} else {
					var err error
					result, err = l.Tools.Execute(ctx, sess, action)
					if err != nil {
						if ctxErr := ctx.Err(); ctxErr != nil {
							return fail(ctxErr)
						}
						l.Metrics.ObserveTool(action.Tool, contractx.ObservationKind(err))
						return fail(err)
					}
				}
				l.Metrics.ObserveTool(action.Tool, result.Kind)

				conversation = append(conversation, contractx.Turn{
					Role:    contractx.TurnObservation,
					CallID:  action.CallID,
					Tool:    action.Tool,
					Content: l.observation(result),
				})
			}
			pending = nil
			state = LoopDeciding

		default:
			return fail(fmt.Errorf("%w: unexpected loop state %q", contractx.ErrValidation, state))
		}
	}
}

func (l *Loop) observation(res contractx.ToolResult) string {
	payload := map[string]any{"tool": res.Tool}
	if res.Error != "" {
		payload["error"] = res.Error
		payload["kind"] = res.Kind
	} else {
		payload["result"] = res.Result
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		raw, _ = json.Marshal(map[string]any{"tool": res.Tool, "error": "result could not be encoded", "kind": "error"})
	}
	text, truncated := l.Budget.Truncate(string(raw))
	if truncated {
		log.Debug().Str("tool", res.Tool).Msg("observation truncated")
	}
	return text
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeAnswered
	case errors.Is(err, contractx.ErrIterationLimitExceeded):
		return OutcomeIterationLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errors.Is(err, contractx.ErrUnreachableService):
		return OutcomeUnreachable
	default:
		return OutcomeError
	}
}
