package tool

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	capabilityx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/capability"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	"github.com/tanpawarit/Chative-Hotel-Concierge/hotel"
)

const (
	TopicBookingCreated   = "booking.created"
	TopicBookingCancelled = "booking.cancelled"

	faqFallback = "I don't have that information. Please contact the front desk."
)

// Resolver is the slice of the capability registry the gateway needs.
type Resolver interface {
	Resolve(name string, role contractx.Role) (contractx.Capability, error)
}

type handler func(ctx context.Context, sess contractx.Session, args map[string]any) (any, error)

type Option func(*Gateway)

func WithRetriever(r contractx.Retriever, k int, minScore float64) Option {
	return func(g *Gateway) {
		g.retriever = r
		g.faqK = k
		g.faqMinScore = minScore
	}
}

func WithNotifier(n contractx.Notifier) Option {
	return func(g *Gateway) {
		g.notifier = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// Gateway re-validates every proposed action against the registry and runs
// it against the hotel store. Domain failures come back as ToolResult data;
// only infrastructure failures are returned as errors.
type Gateway struct {
	registry Resolver
	store    hotel.Store

	retriever   contractx.Retriever
	faqK        int
	faqMinScore float64
	notifier    contractx.Notifier
	now         func() time.Time

	handlers map[string]handler
}

var _ contractx.ToolGateway = (*Gateway)(nil)

func NewGateway(registry Resolver, store hotel.Store, opts ...Option) (*Gateway, error) {
	if registry == nil {
		return nil, errors.New("capability registry is required")
	}
	if store == nil {
		return nil, errors.New("hotel store is required")
	}

	g := &Gateway{
		registry: registry,
		store:    store,
		faqK:     3,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	g.handlers = map[string]handler{
		ToolSearchRooms:           g.searchRooms,
		ToolGetRoomDetails:        g.getRoomDetails,
		ToolQuoteStay:             g.quoteStay,
		ToolBookRoom:              g.bookRoom,
		ToolCancelBooking:         g.cancelBooking,
		ToolGetMyBookings:         g.getMyBookings,
		ToolAnswerFAQ:             g.answerFAQ,
		ToolListBookings:          g.listBookings,
		ToolGetTodaysCheckins:     g.todaysCheckins,
		ToolGetAvailabilityCounts: g.availabilityCounts,
		ToolUpdateRoomStatus:      g.updateRoomStatus,
	}
	return g, nil
}

func (g *Gateway) Execute(ctx context.Context, sess contractx.Session, action contractx.Action) (contractx.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return contractx.ToolResult{}, err
	}

	desc, err := g.registry.Resolve(action.Tool, sess.Role)
	if err != nil {
		return g.failure(action.Tool, err)
	}
	if action.Malformed != "" {
		return g.failure(action.Tool, fmt.Errorf("%w: arguments are not a JSON object: %s", contractx.ErrValidation, action.Malformed))
	}
	args, err := capabilityx.ValidateArgs(desc, action.Args)
	if err != nil {
		return g.failure(action.Tool, err)
	}

	h, ok := g.handlers[desc.Name]
	if !ok {
		return g.failure(action.Tool, fmt.Errorf("%w: %s has no handler", contractx.ErrUnknownCapability, desc.Name))
	}

	out, err := h(ctx, sess, args)
	if err != nil {
		return g.failure(action.Tool, err)
	}
	return contractx.ToolResult{Tool: desc.Name, Result: out, Kind: contractx.ObservationKind(nil)}, nil
}

func (g *Gateway) failure(tool string, err error) (contractx.ToolResult, error) {
	kind := contractx.ObservationKind(err)
	switch kind {
	case "unreachable", "error":
		return contractx.ToolResult{}, fmt.Errorf("tool %s: %w", tool, err)
	}
	return contractx.ToolResult{Tool: tool, Error: err.Error(), Kind: kind}, nil
}

func (g *Gateway) today() time.Time {
	return hotel.DateOf(g.now())
}

func (g *Gateway) notify(ctx context.Context, topic string, b hotel.Booking) {
	if g.notifier == nil {
		return
	}
	// The booking is already committed; a cancelled request still announces it.
	if err := g.notifier.Notify(context.WithoutCancel(ctx), topic, strconv.FormatInt(b.ID, 10), newBookingView(b)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Int64("booking_id", b.ID).Msg("booking notification failed")
	}
}

type roomView struct {
	ID          string  `json:"room_id"`
	Category    string  `json:"category"`
	Rate        float64 `json:"rate"`
	Status      string  `json:"status"`
	Description string  `json:"description,omitempty"`
}

func newRoomView(r hotel.Room) roomView {
	return roomView{ID: r.ID, Category: r.Category, Rate: r.Rate, Status: string(r.Status)}
}

type bookingView struct {
	ID       int64  `json:"booking_id"`
	RoomID   string `json:"room_id"`
	Holder   string `json:"holder"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Nights   int    `json:"nights"`
	Status   string `json:"status"`
}

func newBookingView(b hotel.Booking) bookingView {
	return bookingView{
		ID:       b.ID,
		RoomID:   b.RoomID,
		Holder:   b.Holder,
		CheckIn:  hotel.FormatDate(b.CheckIn),
		CheckOut: hotel.FormatDate(b.CheckOut),
		Nights:   b.Nights(),
		Status:   string(b.Status),
	}
}

func newBookingViews(bs []hotel.Booking) []bookingView {
	out := make([]bookingView, 0, len(bs))
	for _, b := range bs {
		out = append(out, newBookingView(b))
	}
	return out
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func dateArg(args map[string]any, name string) (time.Time, error) {
	return hotel.ParseDate(stringArg(args, name))
}

func stayArgs(args map[string]any) (roomID string, in, out time.Time, err error) {
	roomID = stringArg(args, "room_id")
	if in, err = dateArg(args, "check_in"); err != nil {
		return
	}
	if out, err = dateArg(args, "check_out"); err != nil {
		return
	}
	err = hotel.ValidRange(in, out)
	return
}

func (g *Gateway) searchRooms(ctx context.Context, _ contractx.Session, args map[string]any) (any, error) {
	filter := hotel.RoomFilter{Category: stringArg(args, "category")}
	if v, ok := args["max_rate"].(float64); ok {
		filter.MaxRate = &v
	}
	rooms, err := g.store.FindRooms(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]roomView, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, newRoomView(r))
	}
	return map[string]any{"rooms": views, "count": len(views)}, nil
}

func (g *Gateway) getRoomDetails(ctx context.Context, _ contractx.Session, args map[string]any) (any, error) {
	room, err := g.store.GetRoom(ctx, stringArg(args, "room_id"))
	if err != nil {
		return nil, err
	}
	view := newRoomView(room)
	view.Description = hotel.CategoryDescription(room.Category)
	return view, nil
}

func (g *Gateway) quoteStay(ctx context.Context, _ contractx.Session, args map[string]any) (any, error) {
	roomID, in, out, err := stayArgs(args)
	if err != nil {
		return nil, err
	}
	room, err := g.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	taken, err := g.store.CheckOverlap(ctx, room.ID, in, out)
	if err != nil {
		return nil, err
	}
	nights := hotel.Nights(in, out)
	return map[string]any{
		"room_id":     room.ID,
		"category":    room.Category,
		"check_in":    hotel.FormatDate(in),
		"check_out":   hotel.FormatDate(out),
		"nights":      nights,
		"rate":        room.Rate,
		"total_price": room.Rate * float64(nights),
		"available":   room.Status == hotel.RoomAvailable && !taken,
	}, nil
}

func (g *Gateway) bookRoom(ctx context.Context, sess contractx.Session, args map[string]any) (any, error) {
	roomID, in, out, err := stayArgs(args)
	if err != nil {
		return nil, err
	}
	if in.Before(g.today()) {
		return nil, fmt.Errorf("%w: check-in %s is in the past", contractx.ErrValidation, hotel.FormatDate(in))
	}

	holder := hotel.NormalizeIdentity(stringArg(args, "holder"))
	switch {
	case holder == "":
		holder = sess.Identity
	case holder != hotel.NormalizeIdentity(sess.Identity) && !sess.Role.Allows(contractx.RoleStaff):
		return nil, fmt.Errorf("%w: guests can only book for themselves", contractx.ErrForbidden)
	}

	// Category and rate never change, so they are read up front. Nothing
	// after CreateBooking may fail the call.
	room, err := g.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	b, err := g.store.CreateBooking(ctx, hotel.BookingRequest{
		RoomID:   roomID,
		Holder:   holder,
		CheckIn:  in,
		CheckOut: out,
	})
	if err != nil {
		return nil, err
	}
	g.notify(ctx, TopicBookingCreated, b)

	return map[string]any{
		"booking":     newBookingView(b),
		"category":    room.Category,
		"total_price": room.Rate * float64(b.Nights()),
	}, nil
}

func (g *Gateway) cancelBooking(ctx context.Context, sess contractx.Session, args map[string]any) (any, error) {
	id, _ := args["booking_id"].(int64)
	b, changed, err := g.store.CancelBooking(ctx, id, sess.Identity, sess.Role)
	if err != nil {
		return nil, err
	}
	if changed {
		g.notify(ctx, TopicBookingCancelled, b)
	}
	return map[string]any{
		"booking":           newBookingView(b),
		"already_cancelled": !changed,
	}, nil
}

func (g *Gateway) getMyBookings(ctx context.Context, sess contractx.Session, _ map[string]any) (any, error) {
	bs, err := g.store.ListBookings(ctx, hotel.BookingFilter{Holder: sess.Identity, IncludeCancelled: true})
	if err != nil {
		return nil, err
	}
	return map[string]any{"bookings": newBookingViews(bs), "count": len(bs)}, nil
}

func (g *Gateway) answerFAQ(ctx context.Context, _ contractx.Session, args map[string]any) (any, error) {
	if g.retriever == nil {
		return nil, fmt.Errorf("%w: no knowledge base configured", contractx.ErrUnreachableService)
	}
	chunks, err := g.retriever.Retrieve(ctx, stringArg(args, "question"), g.faqK, g.faqMinScore)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return map[string]any{"found": false, "message": faqFallback}, nil
	}
	answers := make([]string, 0, len(chunks))
	for _, c := range chunks {
		answers = append(answers, strings.TrimSpace(c.Text))
	}
	return map[string]any{"found": true, "answers": answers}, nil
}

func (g *Gateway) listBookings(ctx context.Context, _ contractx.Session, args map[string]any) (any, error) {
	filter := hotel.BookingFilter{Holder: stringArg(args, "holder")}
	if v, ok := args["include_cancelled"].(bool); ok {
		filter.IncludeCancelled = v
	}
	if raw := stringArg(args, "date"); raw != "" {
		d, err := hotel.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		filter.Date = &d
	}
	bs, err := g.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bookings": newBookingViews(bs), "count": len(bs)}, nil
}

func (g *Gateway) todaysCheckins(ctx context.Context, _ contractx.Session, _ map[string]any) (any, error) {
	today := g.today()
	bs, err := g.store.TodaysCheckins(ctx, today)
	if err != nil {
		return nil, err
	}
	return map[string]any{"date": hotel.FormatDate(today), "checkins": newBookingViews(bs), "count": len(bs)}, nil
}

func (g *Gateway) availabilityCounts(ctx context.Context, _ contractx.Session, _ map[string]any) (any, error) {
	counts, err := g.store.AvailabilityCounts(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return map[string]any{"available_by_category": counts, "total_available": total}, nil
}

func (g *Gateway) updateRoomStatus(ctx context.Context, _ contractx.Session, args map[string]any) (any, error) {
	status, err := hotel.ParseRoomStatus(stringArg(args, "status"))
	if err != nil {
		return nil, err
	}
	roomID := stringArg(args, "room_id")
	prev, err := g.store.SetRoomStatus(ctx, roomID, status)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"room_id":         roomID,
		"previous_status": string(prev),
		"status":          string(status),
	}, nil
}
