package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	nodex "github.com/tanpawarit/Chative-Hotel-Concierge/agent/nodes"
	statex "github.com/tanpawarit/Chative-Hotel-Concierge/agent/state"
	metricsx "github.com/tanpawarit/Chative-Hotel-Concierge/pkg/metrics"
	tokensx "github.com/tanpawarit/Chative-Hotel-Concierge/pkg/tokens"
)

var (
	ErrInvalidMessage  = nodex.ErrInvalidMessage
	ErrInvalidIdentity = nodex.ErrInvalidIdentity
)

const defaultFallback = "I'm sorry, I couldn't complete that request right now. Please try again or contact the front desk."

// Config is read under the AGENT prefix.
type Config struct {
	MaxIterations      int    `split_words:"true" default:"8"`
	MaxActionsPerRound int    `split_words:"true" default:"5"`
	ObservationTokens  int    `split_words:"true" default:"800"`
	MaxTranscriptTurns int    `split_words:"true" default:"60"`
	FallbackMessage    string `split_words:"true"`
}

type Response = nodex.GraphOutput

// AgentInfo describes what a given identity may do.
type AgentInfo struct {
	Name      string         `json:"name"`
	Role      contractx.Role `json:"role"`
	ToolCount int            `json:"tool_count"`
	Tools     []string       `json:"tools"`
}

type Option func(*Orchestrator)

func WithMetrics(rec *metricsx.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = rec
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

type Orchestrator struct {
	sessions   nodex.SessionOpener
	decider    contractx.Decider
	tools      contractx.ToolGateway
	store      statex.Store
	metrics    *metricsx.Recorder
	budget     *tokensx.Budget
	loopConfig nodex.LoopConfig
	maxTurns   int
	fallback   string

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(
	sessions nodex.SessionOpener,
	decider contractx.Decider,
	tools contractx.ToolGateway,
	store statex.Store,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if sessions == nil {
		return nil, errors.New("session resolver is required")
	}
	if decider == nil {
		return nil, errors.New("decider is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}
	if store == nil {
		store = statex.NewMemoryStore()
	}
	if cfg.MaxIterations <= 0 {
		return nil, errors.New("max iterations must be > 0")
	}
	if cfg.MaxActionsPerRound <= 0 {
		return nil, errors.New("max actions per round must be > 0")
	}

	fallback := strings.TrimSpace(cfg.FallbackMessage)
	if fallback == "" {
		fallback = defaultFallback
	}

	o := &Orchestrator{
		sessions: sessions,
		decider:  decider,
		tools:    tools,
		store:    store,
		loopConfig: nodex.LoopConfig{
			MaxIterations:      cfg.MaxIterations,
			MaxActionsPerRound: cfg.MaxActionsPerRound,
		},
		maxTurns: cfg.MaxTranscriptTurns,
		fallback: fallback,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if cfg.ObservationTokens > 0 {
		budget, err := tokensx.NewBudget(cfg.ObservationTokens)
		if err != nil {
			return nil, err
		}
		o.budget = budget
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleMessage runs one request. Hitting the round limit yields a degraded
// Response with the fallback text. An unreachable decider or retrieval index
// comes back as an error wrapping contractx.ErrUnreachableService, and a
// cancelled ctx as the ctx error.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, identity, text string) (Response, error) {
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Identity:  identity,
		Text:      text,
	})
	if err != nil {
		return Response{}, err
	}
	return out, nil
}

func (o *Orchestrator) Describe(ctx context.Context, identity string) (AgentInfo, error) {
	sess, err := o.sessions.Open(ctx, "", identity)
	if err != nil {
		return AgentInfo{}, err
	}
	names := make([]string, 0, len(sess.Menu))
	for _, c := range sess.Menu {
		names = append(names, c.Name)
	}
	return AgentInfo{
		Name:      sess.Name,
		Role:      sess.Role,
		ToolCount: len(names),
		Tools:     names,
	}, nil
}

func (o *Orchestrator) loop() *nodex.Loop {
	return &nodex.Loop{
		Decider: o.decider,
		Tools:   o.tools,
		Budget:  o.budget,
		Metrics: o.metrics,
		Config:  o.loopConfig,
		Now:     o.now,
	}
}
