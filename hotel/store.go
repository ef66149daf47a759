package hotel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

// Store is the only shared mutable resource. CreateBooking, CancelBooking and
// SetRoomStatus are atomic per room; reads never observe a half-applied write.
type Store interface {
	FindRooms(ctx context.Context, filter RoomFilter) ([]Room, error)
	GetRoom(ctx context.Context, roomID string) (Room, error)
	SetRoomStatus(ctx context.Context, roomID string, status RoomStatus) (RoomStatus, error)
	CheckOverlap(ctx context.Context, roomID string, in, out time.Time) (bool, error)
	CreateBooking(ctx context.Context, req BookingRequest) (Booking, error)
	CancelBooking(ctx context.Context, bookingID int64, requester string, role contractx.Role) (Booking, bool, error)
	GetBooking(ctx context.Context, bookingID int64) (Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	TodaysCheckins(ctx context.Context, today time.Time) ([]Booking, error)
	AvailabilityCounts(ctx context.Context) (map[string]int, error)
	SeedRooms(ctx context.Context, rooms []Room) error
	Close() error
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver   string `envconfig:"DRIVER" default:"memory"`
	DSN      string `envconfig:"DSN"`
	SeedFile string `envconfig:"SEED_FILE" split_words:"true"`
	NoSeed   bool   `envconfig:"NO_SEED" split_words:"true" default:"false"`
}

// Open builds the configured backend and seeds rooms that are not there yet.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", DriverMemory:
		store = NewMemoryStore()
	case DriverSQLite:
		store, err = NewSQLiteStore(ctx, cfg.DSN)
	case DriverPostgres:
		store, err = NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", contractx.ErrValidation, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.NoSeed {
		return store, nil
	}

	rooms, err := loadSeed(cfg.SeedFile)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := store.SeedRooms(ctx, rooms); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed rooms: %w", err)
	}

	log.Info().
		Str("driver", cfg.Driver).
		Int("rooms", len(rooms)).
		Msg("hotel store ready")
	return store, nil
}

func loadSeed(path string) ([]Room, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRooms()
	}
	return LoadRooms(path)
}

func normalizeRequest(req BookingRequest) (BookingRequest, error) {
	req.RoomID = strings.TrimSpace(req.RoomID)
	req.Holder = NormalizeIdentity(req.Holder)
	req.CheckIn = DateOf(req.CheckIn)
	req.CheckOut = DateOf(req.CheckOut)

	if err := ValidRange(req.CheckIn, req.CheckOut); err != nil {
		return req, err
	}
	if req.RoomID == "" {
		return req, fmt.Errorf("%w: room id is empty", contractx.ErrValidation)
	}
	if req.Holder == "" {
		return req, fmt.Errorf("%w: booking holder is empty", contractx.ErrValidation)
	}
	return req, nil
}

func authorizeCancel(b Booking, requester string, role contractx.Role) error {
	if role.Allows(contractx.RoleStaff) {
		return nil
	}
	if NormalizeIdentity(requester) != b.Holder {
		return fmt.Errorf("%w: booking %d belongs to another guest", contractx.ErrForbidden, b.ID)
	}
	return nil
}

func roomNotFound(roomID string) error {
	return fmt.Errorf("%w: room %s", contractx.ErrNotFound, roomID)
}

func bookingNotFound(id int64) error {
	return fmt.Errorf("%w: booking %d", contractx.ErrNotFound, id)
}

func unavailable(roomID string, status RoomStatus) error {
	if status != RoomAvailable {
		return fmt.Errorf("%w: room %s is %s", contractx.ErrRoomUnavailable, roomID, status)
	}
	return fmt.Errorf("%w: room %s is already booked for those dates", contractx.ErrRoomUnavailable, roomID)
}
