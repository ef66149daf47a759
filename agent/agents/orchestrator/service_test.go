package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	retrievalx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/retrieval"
	sessionx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/session"
	statex "github.com/tanpawarit/Chative-Hotel-Concierge/agent/state"
	toolx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/tool"
	"github.com/tanpawarit/Chative-Hotel-Concierge/hotel"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type funcDecider struct {
	mu       sync.Mutex
	fn       func(n int, req contractx.DecisionRequest) (contractx.Decision, error)
	requests []contractx.DecisionRequest
}

func (f *funcDecider) Decide(ctx context.Context, req contractx.DecisionRequest) (contractx.Decision, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()
	return f.fn(n, req)
}

type harness struct {
	orch    *Orchestrator
	hotel   *hotel.MemoryStore
	store   *statex.MemoryStore
	decider *funcDecider
}

func newHarness(t *testing.T, fn func(n int, req contractx.DecisionRequest) (contractx.Decision, error)) harness {
	t.Helper()

	reg, err := toolx.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	dir, err := sessionx.DefaultDirectory()
	if err != nil {
		t.Fatalf("DefaultDirectory() error = %v", err)
	}
	resolver, err := sessionx.NewResolver(dir, reg)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	clock := func() time.Time { return testNow }
	rooms := hotel.NewMemoryStore(hotel.WithClock(clock))
	seed, err := hotel.DefaultRooms()
	if err != nil {
		t.Fatalf("DefaultRooms() error = %v", err)
	}
	if err := rooms.SeedRooms(context.Background(), seed); err != nil {
		t.Fatalf("SeedRooms() error = %v", err)
	}
	faqCfg := retrievalx.Config{Backend: retrievalx.BackendLexical, TopK: 3, MinScore: 0.2}
	idx, err := retrievalx.BuildIndex(context.Background(), faqCfg, nil)
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	faq, err := retrievalx.NewGateway(idx, faqCfg)
	if err != nil {
		t.Fatalf("retrieval NewGateway() error = %v", err)
	}
	gw, err := toolx.NewGateway(reg, rooms,
		toolx.WithClock(clock),
		toolx.WithRetriever(faq, faq.DefaultK(), faq.DefaultMinScore()),
	)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	decider := &funcDecider{fn: fn}
	transcripts := statex.NewMemoryStore()
	orch, err := New(resolver, decider, gw, transcripts, Config{
		MaxIterations:      4,
		MaxActionsPerRound: 5,
		ObservationTokens:  800,
		MaxTranscriptTurns: 60,
	}, WithClock(clock))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return harness{orch: orch, hotel: rooms, store: transcripts, decider: decider}
}

func answer(text string) func(int, contractx.DecisionRequest) (contractx.Decision, error) {
	return func(int, contractx.DecisionRequest) (contractx.Decision, error) {
		return contractx.Decision{Answer: text}, nil
	}
}

func lastTurn(req contractx.DecisionRequest) contractx.Turn {
	return req.Conversation[len(req.Conversation)-1]
}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()
	h := newHarness(t, answer("hi"))

	_, err := h.orch.HandleMessage(context.Background(), "", "", "hello")
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
	_, err = h.orch.HandleMessage(context.Background(), "", "guest@hotel.com", "   ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestHandleMessageUnknownIdentity(t *testing.T) {
	t.Parallel()
	h := newHarness(t, answer("hi"))

	_, err := h.orch.HandleMessage(context.Background(), "", "stranger@nowhere.com", "hello")
	if !errors.Is(err, contractx.ErrUnknownIdentity) {
		t.Fatalf("expected ErrUnknownIdentity, got %v", err)
	}
	if len(h.decider.requests) != 0 {
		t.Fatal("decider must not run for unknown identities")
	}
}

func TestHandleMessageBooksRoom(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(n int, req contractx.DecisionRequest) (contractx.Decision, error) {
		if n == 1 {
			return contractx.Decision{Actions: []contractx.Action{{
				CallID: "call_1",
				Tool:   toolx.ToolBookRoom,
				Args:   map[string]any{"room_id": "201", "check_in": "2026-04-01", "check_out": "2026-04-03"},
			}}}, nil
		}
		obs := lastTurn(req)
		if obs.CallID != "call_1" || !strings.Contains(obs.Content, `"booking_id":1`) {
			t.Errorf("unexpected observation: %+v", obs)
		}
		return contractx.Decision{Answer: "Booked room 201, booking #1."}, nil
	})

	out, err := h.orch.HandleMessage(context.Background(), "", "Guest@Hotel.com", "Book room 201 from April 1 to 3")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Degraded || out.Reply != "Booked room 201, booking #1." {
		t.Fatalf("unexpected response: %+v", out)
	}
	if out.Role != contractx.RoleGuest || out.Name != "Guest User" || out.Iterations != 2 {
		t.Fatalf("unexpected response metadata: %+v", out)
	}
	if out.SessionID == "" {
		t.Fatal("expected a minted session id")
	}

	b, err := h.hotel.GetBooking(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetBooking() error = %v", err)
	}
	if b.Holder != "guest@hotel.com" || b.RoomID != "201" {
		t.Fatalf("unexpected booking: %+v", b)
	}

	tr, err := h.store.Load(context.Background(), out.SessionID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(tr.Turns) != 4 {
		t.Fatalf("expected 4 transcript turns, got %d", len(tr.Turns))
	}
}

func TestHandleMessageGuestCannotEscalate(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(n int, req contractx.DecisionRequest) (contractx.Decision, error) {
		if n == 1 {
			for _, c := range req.Session.Menu {
				if c.Name == toolx.ToolUpdateRoomStatus {
					t.Errorf("guest menu must not offer %s", c.Name)
				}
			}
			return contractx.Decision{Actions: []contractx.Action{{
				CallID: "c1",
				Tool:   toolx.ToolUpdateRoomStatus,
				Args:   map[string]any{"room_id": "101", "status": "maintenance"},
			}}}, nil
		}
		if !strings.Contains(lastTurn(req).Content, `"kind":"forbidden"`) {
			t.Errorf("expected forbidden observation, got %q", lastTurn(req).Content)
		}
		return contractx.Decision{Answer: "Sorry, I can't do that."}, nil
	})

	out, err := h.orch.HandleMessage(context.Background(), "", "john@email.com", "put room 101 into maintenance")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out.Degraded {
		t.Fatalf("unexpected degraded response: %+v", out)
	}

	room, err := h.hotel.GetRoom(context.Background(), "101")
	if err != nil {
		t.Fatalf("GetRoom() error = %v", err)
	}
	if room.Status != hotel.RoomAvailable {
		t.Fatalf("room status changed to %s", room.Status)
	}
}

type faqObservation struct {
	Tool   string `json:"tool"`
	Result struct {
		Found   bool     `json:"found"`
		Message string   `json:"message"`
		Answers []string `json:"answers"`
	} `json:"result"`
}

// faqDecider asks answer_faq once and then replies with whatever the
// knowledge base returned, or its "no information" message.
func faqDecider(t *testing.T, question string, seen *faqObservation) func(int, contractx.DecisionRequest) (contractx.Decision, error) {
	return func(n int, req contractx.DecisionRequest) (contractx.Decision, error) {
		if n == 1 {
			return contractx.Decision{Actions: []contractx.Action{{
				CallID: "call_faq",
				Tool:   toolx.ToolAnswerFAQ,
				Args:   map[string]any{"question": question},
			}}}, nil
		}
		obs := lastTurn(req)
		if obs.Role != contractx.TurnObservation || obs.CallID != "call_faq" {
			t.Errorf("expected the answer_faq observation, got %+v", obs)
		}
		if err := json.Unmarshal([]byte(obs.Content), seen); err != nil {
			t.Errorf("observation is not JSON: %v (%q)", err, obs.Content)
		}
		if !seen.Result.Found {
			return contractx.Decision{Answer: seen.Result.Message}, nil
		}
		return contractx.Decision{Answer: strings.Join(seen.Result.Answers, " ")}, nil
	}
}

func TestHandleMessageFAQWithoutMatchAnswersAbsence(t *testing.T) {
	t.Parallel()
	var seen faqObservation
	h := newHarness(t, nil)
	h.decider.fn = faqDecider(t, "quantum chromodynamics lecture", &seen)

	out, err := h.orch.HandleMessage(context.Background(), "", "guest@hotel.com", "Is there a quantum chromodynamics lecture?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if seen.Tool != toolx.ToolAnswerFAQ || seen.Result.Found || len(seen.Result.Answers) != 0 {
		t.Fatalf("expected an empty answer_faq result, got %+v", seen)
	}
	if !strings.Contains(seen.Result.Message, "contact the front desk") {
		t.Fatalf("expected the front-desk fallback, got %q", seen.Result.Message)
	}
	if out.Degraded || out.Reply != seen.Result.Message || out.Iterations != 2 {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestHandleMessageFAQWithMatchIsGrounded(t *testing.T) {
	t.Parallel()
	var seen faqObservation
	h := newHarness(t, nil)
	h.decider.fn = faqDecider(t, "What time is check-out?", &seen)

	out, err := h.orch.HandleMessage(context.Background(), "", "guest@hotel.com", "When do I have to check out?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !seen.Result.Found || len(seen.Result.Answers) == 0 {
		t.Fatalf("expected grounded answers, got %+v", seen)
	}
	if !strings.Contains(out.Reply, "check-out time is 11:00 AM") {
		t.Fatalf("reply is not grounded in the corpus: %q", out.Reply)
	}
}

func TestHandleMessageIterationLimitFallsBack(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(n int, req contractx.DecisionRequest) (contractx.Decision, error) {
		return contractx.Decision{Actions: []contractx.Action{{CallID: "c", Tool: toolx.ToolSearchRooms}}}, nil
	})

	out, err := h.orch.HandleMessage(context.Background(), "s-limit", "guest@hotel.com", "rooms?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !out.Degraded || out.Reason != "iteration_limit" || out.Reply != defaultFallback {
		t.Fatalf("unexpected response: %+v", out)
	}
	if out.Iterations != 4 {
		t.Fatalf("expected 4 iterations, got %d", out.Iterations)
	}

	tr, err := h.store.Load(context.Background(), "s-limit")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(tr.Turns) != 1 || tr.Turns[0].Role != contractx.TurnUser {
		t.Fatalf("failed run must only keep the user turn, got %+v", tr.Turns)
	}
}

func TestHandleMessageDeciderOutage(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(int, contractx.DecisionRequest) (contractx.Decision, error) {
		return contractx.Decision{}, contractx.ErrUnreachableService
	})

	_, err := h.orch.HandleMessage(context.Background(), "s-down", "staff@hotel.com", "today's check-ins?")
	if !errors.Is(err, contractx.ErrUnreachableService) {
		t.Fatalf("expected ErrUnreachableService, got %v", err)
	}

	tr, err := h.store.Load(context.Background(), "s-down")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(tr.Turns) != 1 || tr.Turns[0].Role != contractx.TurnUser {
		t.Fatalf("failed run must only keep the user turn, got %+v", tr.Turns)
	}
}

func TestHandleMessageKeepsHistoryPerIdentity(t *testing.T) {
	t.Parallel()
	h := newHarness(t, answer("noted"))
	ctx := context.Background()

	if _, err := h.orch.HandleMessage(ctx, "s1", "guest@hotel.com", "my name is Ann"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if _, err := h.orch.HandleMessage(ctx, "s1", "guest@hotel.com", "what is my name?"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	second := h.decider.requests[1].Conversation
	if len(second) != 3 || second[0].Content != "my name is Ann" {
		t.Fatalf("expected history to be replayed, got %+v", second)
	}

	if _, err := h.orch.HandleMessage(ctx, "s1", "john@email.com", "what was said here?"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	third := h.decider.requests[2].Conversation
	if len(third) != 1 {
		t.Fatalf("another identity must not see the transcript, got %+v", third)
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	h := newHarness(t, answer("hi"))

	guest, err := h.orch.Describe(context.Background(), "guest@hotel.com")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	staff, err := h.orch.Describe(context.Background(), "manager@hotel.com")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if guest.Role != contractx.RoleGuest || guest.ToolCount != 7 {
		t.Fatalf("unexpected guest info: %+v", guest)
	}
	if staff.Role != contractx.RoleStaff || staff.ToolCount != 11 || staff.Name != "Hotel Manager" {
		t.Fatalf("unexpected staff info: %+v", staff)
	}

	if _, err := h.orch.Describe(context.Background(), "nobody@x.com"); !errors.Is(err, contractx.ErrUnknownIdentity) {
		t.Fatalf("expected ErrUnknownIdentity, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil, nil, Config{})
	if err == nil {
		t.Fatal("expected error")
	}
}
