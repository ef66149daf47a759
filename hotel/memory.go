package hotel

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

var _ Store = (*MemoryStore)(nil)

type MemoryOption func(*MemoryStore)

func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// MemoryStore keeps everything in process. Writes to one room serialize on
// that room's lock; mu guards the maps themselves.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]Room
	bookings map[int64]Booking
	byRoom   map[string][]int64
	nextID   int64

	locksMu   sync.Mutex
	roomLocks map[string]*sync.Mutex

	now func() time.Time
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		rooms:     make(map[string]Room, 16),
		bookings:  make(map[int64]Booking, 64),
		byRoom:    make(map[string][]int64, 16),
		roomLocks: make(map[string]*sync.Mutex, 16),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) roomLock(roomID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.roomLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.roomLocks[roomID] = l
	}
	return l
}

func (s *MemoryStore) FindRooms(ctx context.Context, filter RoomFilter) ([]Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if filter.match(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sortRooms(out)
	return out, nil
}

func (s *MemoryStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}
	roomID = strings.TrimSpace(roomID)

	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return Room{}, roomNotFound(roomID)
	}
	return r, nil
}

func (s *MemoryStore) SetRoomStatus(ctx context.Context, roomID string, status RoomStatus) (RoomStatus, error) {
	status, err := ParseRoomStatus(string(status))
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	roomID = strings.TrimSpace(roomID)
	if !s.hasRoom(roomID) {
		return "", roomNotFound(roomID)
	}

	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rooms[roomID]
	prev := r.Status
	r.Status = status
	s.rooms[roomID] = r
	return prev, nil
}

func (s *MemoryStore) CheckOverlap(ctx context.Context, roomID string, in, out time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlapLocked(strings.TrimSpace(roomID), DateOf(in), DateOf(out)), nil
}

func (s *MemoryStore) overlapLocked(roomID string, in, out time.Time) bool {
	for _, id := range s.byRoom[roomID] {
		b := s.bookings[id]
		if b.Confirmed() && Overlaps(b.CheckIn, b.CheckOut, in, out) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateBooking(ctx context.Context, req BookingRequest) (Booking, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return Booking{}, err
	}
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	if !s.hasRoom(req.RoomID) {
		return Booking{}, roomNotFound(req.RoomID)
	}

	lock := s.roomLock(req.RoomID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.rooms[req.RoomID]
	if room.Status != RoomAvailable {
		return Booking{}, unavailable(room.ID, room.Status)
	}
	if s.overlapLocked(req.RoomID, req.CheckIn, req.CheckOut) {
		return Booking{}, unavailable(room.ID, room.Status)
	}

	s.nextID++
	b := Booking{
		ID:        s.nextID,
		RoomID:    req.RoomID,
		Holder:    req.Holder,
		CheckIn:   req.CheckIn,
		CheckOut:  req.CheckOut,
		Status:    BookingConfirmed,
		CreatedAt: s.now().UTC(),
	}
	s.bookings[b.ID] = b
	s.byRoom[b.RoomID] = append(s.byRoom[b.RoomID], b.ID)
	return b, nil
}

func (s *MemoryStore) CancelBooking(ctx context.Context, bookingID int64, requester string, role contractx.Role) (Booking, bool, error) {
	if err := ctx.Err(); err != nil {
		return Booking{}, false, err
	}
	b, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, false, err
	}
	if err := authorizeCancel(b, requester, role); err != nil {
		return Booking{}, false, err
	}
	if !b.Confirmed() {
		return b, false, nil
	}

	lock := s.roomLock(b.RoomID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	b = s.bookings[bookingID]
	if !b.Confirmed() {
		return b, false, nil
	}
	b.Status = BookingCancelled
	s.bookings[bookingID] = b
	return b, true, nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, bookingID int64) (Booking, error) {
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return Booking{}, bookingNotFound(bookingID)
	}
	return b, nil
}

func (s *MemoryStore) ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		if filter.match(b) {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Booking) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

func (s *MemoryStore) TodaysCheckins(ctx context.Context, today time.Time) ([]Booking, error) {
	day := DateOf(today)
	all, err := s.ListBookings(ctx, BookingFilter{})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, b := range all {
		if b.CheckIn.Equal(day) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) AvailabilityCounts(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, 8)
	for _, r := range s.rooms {
		if r.Status == RoomAvailable {
			out[r.Category]++
		}
	}
	return out, nil
}

func (s *MemoryStore) SeedRooms(ctx context.Context, rooms []Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range rooms {
		if err := r.validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rooms {
		r.ID = strings.TrimSpace(r.ID)
		if _, exists := s.rooms[r.ID]; exists {
			continue
		}
		r.Status, _ = ParseRoomStatus(string(r.Status))
		s.rooms[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) hasRoom(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

func sortRooms(rooms []Room) {
	slices.SortFunc(rooms, func(a, b Room) int {
		switch {
		case a.Rate < b.Rate:
			return -1
		case a.Rate > b.Rate:
			return 1
		default:
			return strings.Compare(a.ID, b.ID)
		}
	})
}
