package hotel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

var _ Store = (*PostgresStore)(nil)

type roomModel struct {
	bun.BaseModel `bun:"table:rooms,alias:r"`

	ID       string  `bun:"id,pk"`
	Category string  `bun:"category,notnull"`
	Rate     float64 `bun:"rate,notnull"`
	Status   string  `bun:"status,notnull"`
}

func (m roomModel) room() Room {
	return Room{ID: m.ID, Category: m.Category, Rate: m.Rate, Status: RoomStatus(m.Status)}
}

type bookingModel struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID        int64     `bun:"id,pk,autoincrement"`
	RoomID    string    `bun:"room_id,notnull"`
	Holder    string    `bun:"holder,notnull"`
	CheckIn   time.Time `bun:"check_in,type:date,notnull"`
	CheckOut  time.Time `bun:"check_out,type:date,notnull"`
	Status    string    `bun:"status,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (m bookingModel) booking() Booking {
	return Booking{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Holder:    m.Holder,
		CheckIn:   DateOf(m.CheckIn),
		CheckOut:  DateOf(m.CheckOut),
		Status:    BookingStatus(m.Status),
		CreatedAt: m.CreatedAt.UTC(),
	}
}

// PostgresStore serializes writers on a room by locking its row for the
// length of the transaction.
type PostgresStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", contractx.ErrValidation)
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", contractx.ErrUnreachableService, err)
	}

	s := &PostgresStore{db: db, now: time.Now}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	log.Debug().Msg("postgres hotel store initialized")
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*roomModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create rooms: %w", err)
	}
	if _, err := s.db.NewCreateTable().
		Model((*bookingModel)(nil)).
		IfNotExists().
		ForeignKey(`("room_id") REFERENCES "rooms" ("id")`).
		Exec(ctx); err != nil {
		return fmt.Errorf("create bookings: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*bookingModel)(nil)).
		Index("bookings_room_status_idx").
		Column("room_id", "status").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create bookings index: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindRooms(ctx context.Context, filter RoomFilter) ([]Room, error) {
	var models []roomModel
	if err := findRoomsQuery(s.db, filter).Scan(ctx, &models); err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	out := make([]Room, 0, len(models))
	for _, m := range models {
		out = append(out, m.room())
	}
	return out, nil
}

func findRoomsQuery(db bun.IDB, filter RoomFilter) *bun.SelectQuery {
	q := db.NewSelect().
		Model((*roomModel)(nil)).
		Where("status = ?", string(RoomAvailable))
	if c := strings.TrimSpace(filter.Category); c != "" {
		q = q.Where("lower(category) = lower(?)", c)
	}
	if filter.MaxRate != nil {
		q = q.Where("rate <= ?", *filter.MaxRate)
	}
	return q.Order("rate ASC", "id ASC")
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	var m roomModel
	err := s.db.NewSelect().Model(&m).Where("id = ?", strings.TrimSpace(roomID)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, roomNotFound(roomID)
	}
	if err != nil {
		return Room{}, fmt.Errorf("querying room %s: %w", roomID, err)
	}
	return m.room(), nil
}

// lockRoomQuery selects the room row FOR UPDATE so competing writers on the
// same room queue behind the current transaction.
func lockRoomQuery(db bun.IDB, m *roomModel, roomID string) *bun.SelectQuery {
	return db.NewSelect().Model(m).Where("id = ?", roomID).For("UPDATE")
}

func overlapQuery(db bun.IDB, roomID string, in, out time.Time) *bun.SelectQuery {
	return db.NewSelect().
		Model((*bookingModel)(nil)).
		Where("room_id = ?", roomID).
		Where("status = ?", string(BookingConfirmed)).
		Where("check_in < ?::date", FormatDate(out)).
		Where("?::date < check_out", FormatDate(in))
}

func (s *PostgresStore) SetRoomStatus(ctx context.Context, roomID string, status RoomStatus) (RoomStatus, error) {
	status, err := ParseRoomStatus(string(status))
	if err != nil {
		return "", err
	}
	roomID = strings.TrimSpace(roomID)

	var prev RoomStatus
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var m roomModel
		if err := lockRoomQuery(tx, &m, roomID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return roomNotFound(roomID)
			}
			return err
		}
		prev = RoomStatus(m.Status)
		_, err := tx.NewUpdate().
			Model((*roomModel)(nil)).
			Set("status = ?", string(status)).
			Where("id = ?", roomID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	return prev, nil
}

func (s *PostgresStore) CheckOverlap(ctx context.Context, roomID string, in, out time.Time) (bool, error) {
	exists, err := overlapQuery(s.db, strings.TrimSpace(roomID), in, out).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("checking overlap on room %s: %w", roomID, err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateBooking(ctx context.Context, req BookingRequest) (Booking, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return Booking{}, err
	}

	m := bookingModel{
		RoomID:    req.RoomID,
		Holder:    req.Holder,
		CheckIn:   req.CheckIn,
		CheckOut:  req.CheckOut,
		Status:    string(BookingConfirmed),
		CreatedAt: s.now().UTC(),
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var room roomModel
		if err := lockRoomQuery(tx, &room, req.RoomID).Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return roomNotFound(req.RoomID)
			}
			return err
		}
		if RoomStatus(room.Status) != RoomAvailable {
			return unavailable(room.ID, RoomStatus(room.Status))
		}

		conflict, err := overlapQuery(tx, req.RoomID, req.CheckIn, req.CheckOut).Exists(ctx)
		if err != nil {
			return err
		}
		if conflict {
			return unavailable(room.ID, RoomAvailable)
		}

		if _, err := tx.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("inserting booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	return m.booking(), nil
}

func (s *PostgresStore) CancelBooking(ctx context.Context, bookingID int64, requester string, role contractx.Role) (Booking, bool, error) {
	var (
		b       Booking
		changed bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var m bookingModel
		err := tx.NewSelect().Model(&m).Where("id = ?", bookingID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return bookingNotFound(bookingID)
		}
		if err != nil {
			return err
		}
		b = m.booking()
		if err := authorizeCancel(b, requester, role); err != nil {
			return err
		}
		if !b.Confirmed() {
			return nil
		}
		if _, err := tx.NewUpdate().
			Model((*bookingModel)(nil)).
			Set("status = ?", string(BookingCancelled)).
			Where("id = ?", bookingID).
			Exec(ctx); err != nil {
			return err
		}
		b.Status = BookingCancelled
		changed = true
		return nil
	})
	if err != nil {
		return Booking{}, false, err
	}
	return b, changed, nil
}

func (s *PostgresStore) GetBooking(ctx context.Context, bookingID int64) (Booking, error) {
	var m bookingModel
	err := s.db.NewSelect().Model(&m).Where("id = ?", bookingID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, bookingNotFound(bookingID)
	}
	if err != nil {
		return Booking{}, fmt.Errorf("querying booking %d: %w", bookingID, err)
	}
	return m.booking(), nil
}

func listBookingsQuery(db bun.IDB, filter BookingFilter) *bun.SelectQuery {
	q := db.NewSelect().Model((*bookingModel)(nil))
	if !filter.IncludeCancelled {
		q = q.Where("status = ?", string(BookingConfirmed))
	}
	if h := NormalizeIdentity(filter.Holder); h != "" {
		q = q.Where("holder = ?", h)
	}
	if filter.Date != nil {
		d := FormatDate(DateOf(*filter.Date))
		q = q.Where("(check_in = ?::date OR check_out = ?::date)", d, d)
	}
	return q.Order("id ASC")
}

func (s *PostgresStore) ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error) {
	return s.scanBookings(ctx, listBookingsQuery(s.db, filter))
}

func (s *PostgresStore) TodaysCheckins(ctx context.Context, today time.Time) ([]Booking, error) {
	q := s.db.NewSelect().
		Model((*bookingModel)(nil)).
		Where("status = ?", string(BookingConfirmed)).
		Where("check_in = ?::date", FormatDate(DateOf(today))).
		Order("id ASC")
	return s.scanBookings(ctx, q)
}

func (s *PostgresStore) scanBookings(ctx context.Context, q *bun.SelectQuery) ([]Booking, error) {
	var models []bookingModel
	if err := q.Scan(ctx, &models); err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	out := make([]Booking, 0, len(models))
	for _, m := range models {
		out = append(out, m.booking())
	}
	return out, nil
}

func (s *PostgresStore) AvailabilityCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Category string `bun:"category"`
		Count    int    `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*roomModel)(nil)).
		Column("category").
		ColumnExpr("count(*) AS count").
		Where("status = ?", string(RoomAvailable)).
		Group("category").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("counting rooms: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Category] = r.Count
	}
	return out, nil
}

func (s *PostgresStore) SeedRooms(ctx context.Context, rooms []Room) error {
	if len(rooms) == 0 {
		return nil
	}
	models := make([]roomModel, 0, len(rooms))
	for _, r := range rooms {
		if err := r.validate(); err != nil {
			return err
		}
		status, _ := ParseRoomStatus(string(r.Status))
		models = append(models, roomModel{
			ID:       strings.TrimSpace(r.ID),
			Category: r.Category,
			Rate:     r.Rate,
			Status:   string(status),
		})
	}
	_, err := s.db.NewInsert().Model(&models).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	return err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
