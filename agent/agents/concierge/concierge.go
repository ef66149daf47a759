// Package concierge is the Decider backed by a tool-calling chat model.
// Each round it renders the role's system prompt and the conversation so far
// and turns the model's reply into either actions or a final answer.
package concierge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	llmx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/llm"
	promptx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/prompt"
)

type Option func(*Decider)

// WithRoleModel uses m instead of the default model for sessions of role.
func WithRoleModel(role contractx.Role, m einomodel.ToolCallingChatModel) Option {
	return func(d *Decider) {
		if m != nil {
			d.models[role] = m
		}
	}
}

type Decider struct {
	base    einomodel.ToolCallingChatModel
	models  map[contractx.Role]einomodel.ToolCallingChatModel
	prompts promptx.PromptSet

	mu      sync.Mutex
	runners map[string]compose.Runnable[map[string]any, *schema.Message]
}

var _ contractx.Decider = (*Decider)(nil)

func New(base einomodel.ToolCallingChatModel, prompts promptx.PromptSet, opts ...Option) (*Decider, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(prompts.Concierge) == "" {
		return nil, fmt.Errorf("%w: concierge prompt", contractx.ErrPromptMissing)
	}
	d := &Decider{
		base:    base,
		models:  make(map[contractx.Role]einomodel.ToolCallingChatModel, 2),
		prompts: prompts,
		runners: make(map[string]compose.Runnable[map[string]any, *schema.Message]),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// NewFromConfig builds the OpenRouter-backed models for each role.
func NewFromConfig(ctx context.Context, cfg llmx.Config) (*Decider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	guestCfg := cfg.OpenRouterFor(contractx.RoleGuest)
	base, err := guestCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create guest model: %v", contractx.ErrModelInvoke, err)
	}

	var opts []Option
	if staffCfg := cfg.OpenRouterFor(contractx.RoleStaff); staffCfg.Model != guestCfg.Model {
		staffModel, err := staffCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create staff model: %v", contractx.ErrModelInvoke, err)
		}
		opts = append(opts, WithRoleModel(contractx.RoleStaff, staffModel))
	}
	return New(base, promptx.LoadPromptSet(), opts...)
}

func (d *Decider) Decide(ctx context.Context, req contractx.DecisionRequest) (contractx.Decision, error) {
	if err := ctx.Err(); err != nil {
		return contractx.Decision{}, err
	}

	runner, err := d.runnerFor(ctx, req.Session)
	if err != nil {
		return contractx.Decision{}, err
	}

	msgs, err := toMessages(req.Conversation)
	if err != nil {
		return contractx.Decision{}, err
	}

	today := req.Today
	if today.IsZero() {
		today = time.Now()
	}
	name := strings.TrimSpace(req.Session.Name)
	if name == "" {
		name = req.Session.Identity
	}

	msg, err := runner.Invoke(ctx, map[string]any{
		"name":          name,
		"role":          strings.ToUpper(string(req.Session.Role)),
		"today":         today.Format("2006-01-02 (Monday)"),
		conversationKey: msgs,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contractx.Decision{}, ctxErr
		}
		return contractx.Decision{}, fmt.Errorf("%w: %w: %v", contractx.ErrUnreachableService, contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.Decision{}, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
	}

	if len(msg.ToolCalls) == 0 {
		return contractx.Decision{Answer: strings.TrimSpace(msg.Content)}, nil
	}
	return contractx.Decision{Actions: toActions(msg.ToolCalls, len(req.Conversation))}, nil
}

func (d *Decider) runnerFor(ctx context.Context, sess contractx.Session) (compose.Runnable[map[string]any, *schema.Message], error) {
	key := menuKey(sess)

	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.runners[key]; ok {
		return r, nil
	}

	chatModel := d.base
	if m, ok := d.models[sess.Role]; ok {
		chatModel = m
	}
	toolModel, err := chatModel.WithTools(toolInfos(sess.Menu))
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for role=%s: %v", contractx.ErrModelInvoke, sess.Role, err)
	}

	runner, err := compileDecisionGraph(ctx, toolModel, d.prompts.SystemFor(sess.Role), "concierge.decide."+string(sess.Role))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	d.runners[key] = runner
	log.Debug().Str("role", string(sess.Role)).Int("tools", len(sess.Menu)).Msg("compiled decision graph")
	return runner, nil
}

func menuKey(sess contractx.Session) string {
	var b strings.Builder
	b.WriteString(string(sess.Role))
	for _, c := range sess.Menu {
		b.WriteByte('|')
		b.WriteString(c.Name)
	}
	return b.String()
}

func toolInfos(menu []contractx.Capability) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(menu))
	for _, c := range menu {
		params := make(map[string]*schema.ParameterInfo, len(c.Fields))
		for _, f := range c.Fields {
			params[f.Name] = &schema.ParameterInfo{
				Type:     dataType(f.Type),
				Desc:     f.Description,
				Enum:     f.Enum,
				Required: f.Required,
			}
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        c.Name,
			Desc:        c.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}

func dataType(t contractx.FieldType) schema.DataType {
	switch t {
	case contractx.FieldNumber:
		return schema.Number
	case contractx.FieldInteger:
		return schema.Integer
	case contractx.FieldBoolean:
		return schema.Boolean
	default:
		return schema.String
	}
}

// toActions keeps malformed calls so the loop can answer each call ID.
func toActions(calls []schema.ToolCall, round int) []contractx.Action {
	actions := make([]contractx.Action, 0, len(calls))
	for i, call := range calls {
		id := strings.TrimSpace(call.ID)
		if id == "" {
			id = fmt.Sprintf("call_%d_%d", round, i)
		}
		action := contractx.Action{
			CallID: id,
			Tool:   strings.TrimSpace(call.Function.Name),
			Args:   map[string]any{},
		}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &action.Args); err != nil {
				action.Args = nil
				action.Malformed = err.Error()
			}
		}
		actions = append(actions, action)
	}
	return actions
}

func toMessages(turns []contractx.Turn) ([]*schema.Message, error) {
	msgs := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case contractx.TurnUser:
			msgs = append(msgs, schema.UserMessage(t.Content))
		case contractx.TurnAssistant:
			calls := make([]schema.ToolCall, 0, len(t.Actions))
			for _, a := range t.Actions {
				args := "{}"
				if a.Args != nil {
					raw, err := json.Marshal(a.Args)
					if err != nil {
						return nil, fmt.Errorf("%w: encode args for %s: %v", contractx.ErrValidation, a.Tool, err)
					}
					args = string(raw)
				}
				calls = append(calls, schema.ToolCall{
					ID:       a.CallID,
					Type:     "function",
					Function: schema.FunctionCall{Name: a.Tool, Arguments: args},
				})
			}
			if len(calls) == 0 {
				calls = nil
			}
			msgs = append(msgs, schema.AssistantMessage(t.Content, calls))
		case contractx.TurnObservation:
			if t.CallID != "" {
				msgs = append(msgs, schema.ToolMessage(t.Content, t.CallID))
			} else {
				msgs = append(msgs, schema.UserMessage("Observation: "+t.Content))
			}
		default:
			return nil, fmt.Errorf("%w: unknown turn role %q", contractx.ErrValidation, t.Role)
		}
	}
	return msgs, nil
}
