package hotel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"

	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore runs on a single connection and begins every transaction with
// BEGIN IMMEDIATE, so a check-then-insert holds the write lock from its first
// read, also against other processes sharing the file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "data/hotel.db"
	}
	file, _, _ := strings.Cut(strings.TrimPrefix(path, "file:"), "?")
	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("sqlite hotel store initialized")
	return s, nil
}

// sqliteDSN makes transactions take the write lock up front unless the
// caller already picked a lock mode.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_txlock=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate"
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id       TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		rate     REAL NOT NULL CHECK (rate >= 0),
		status   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bookings (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id    TEXT NOT NULL REFERENCES rooms(id),
		holder     TEXT NOT NULL,
		check_in   TEXT NOT NULL,
		check_out  TEXT NOT NULL,
		status     TEXT NOT NULL,
		created_at TEXT NOT NULL,
		CHECK (check_out > check_in)
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_room_status ON bookings(room_id, status);
	CREATE INDEX IF NOT EXISTS idx_bookings_holder ON bookings(holder);
	CREATE INDEX IF NOT EXISTS idx_bookings_check_in ON bookings(check_in);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const bookingColumns = "id, room_id, holder, check_in, check_out, status, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (Booking, error) {
	var (
		b                       Booking
		checkIn, checkOut, when string
		status                  string
	)
	if err := row.Scan(&b.ID, &b.RoomID, &b.Holder, &checkIn, &checkOut, &status, &when); err != nil {
		return Booking{}, err
	}
	var err error
	if b.CheckIn, err = time.Parse(DateLayout, checkIn); err != nil {
		return Booking{}, fmt.Errorf("booking %d check_in: %w", b.ID, err)
	}
	if b.CheckOut, err = time.Parse(DateLayout, checkOut); err != nil {
		return Booking{}, fmt.Errorf("booking %d check_out: %w", b.ID, err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, when); err != nil {
		return Booking{}, fmt.Errorf("booking %d created_at: %w", b.ID, err)
	}
	b.Status = BookingStatus(status)
	return b, nil
}

func (s *SQLiteStore) FindRooms(ctx context.Context, filter RoomFilter) ([]Room, error) {
	query := `SELECT id, category, rate, status FROM rooms WHERE status = ?`
	args := []any{string(RoomAvailable)}
	if c := strings.TrimSpace(filter.Category); c != "" {
		query += ` AND lower(category) = lower(?)`
		args = append(args, c)
	}
	if filter.MaxRate != nil {
		query += ` AND rate <= ?`
		args = append(args, *filter.MaxRate)
	}
	query += ` ORDER BY rate ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var r Room
		var status string
		if err := rows.Scan(&r.ID, &r.Category, &r.Rate, &status); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		r.Status = RoomStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetRoom(ctx context.Context, roomID string) (Room, error) {
	return getRoomSQL(ctx, s.db, strings.TrimSpace(roomID))
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRoomSQL(ctx context.Context, q queryRower, roomID string) (Room, error) {
	var r Room
	var status string
	err := q.QueryRowContext(ctx, `SELECT id, category, rate, status FROM rooms WHERE id = ?`, roomID).
		Scan(&r.ID, &r.Category, &r.Rate, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, roomNotFound(roomID)
	}
	if err != nil {
		return Room{}, fmt.Errorf("querying room %s: %w", roomID, err)
	}
	r.Status = RoomStatus(status)
	return r, nil
}

func (s *SQLiteStore) SetRoomStatus(ctx context.Context, roomID string, status RoomStatus) (RoomStatus, error) {
	status, err := ParseRoomStatus(string(status))
	if err != nil {
		return "", err
	}
	roomID = strings.TrimSpace(roomID)

	var prev RoomStatus
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		room, err := getRoomSQL(ctx, tx, roomID)
		if err != nil {
			return err
		}
		prev = room.Status
		_, err = tx.ExecContext(ctx, `UPDATE rooms SET status = ? WHERE id = ?`, string(status), roomID)
		return err
	})
	if err != nil {
		return "", err
	}
	return prev, nil
}

func (s *SQLiteStore) CheckOverlap(ctx context.Context, roomID string, in, out time.Time) (bool, error) {
	return overlapSQL(ctx, s.db, strings.TrimSpace(roomID), in, out)
}

func overlapSQL(ctx context.Context, q queryRower, roomID string, in, out time.Time) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE room_id = ? AND status = ? AND check_in < ? AND ? < check_out
		)`,
		roomID, string(BookingConfirmed), FormatDate(out), FormatDate(in),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking overlap on room %s: %w", roomID, err)
	}
	return exists, nil
}

func (s *SQLiteStore) CreateBooking(ctx context.Context, req BookingRequest) (Booking, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return Booking{}, err
	}

	b := Booking{
		RoomID:    req.RoomID,
		Holder:    req.Holder,
		CheckIn:   req.CheckIn,
		CheckOut:  req.CheckOut,
		Status:    BookingConfirmed,
		CreatedAt: s.now().UTC(),
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		room, err := getRoomSQL(ctx, tx, req.RoomID)
		if err != nil {
			return err
		}
		if room.Status != RoomAvailable {
			return unavailable(room.ID, room.Status)
		}
		conflict, err := overlapSQL(ctx, tx, req.RoomID, req.CheckIn, req.CheckOut)
		if err != nil {
			return err
		}
		if conflict {
			return unavailable(room.ID, room.Status)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO bookings (room_id, holder, check_in, check_out, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			b.RoomID, b.Holder, FormatDate(b.CheckIn), FormatDate(b.CheckOut), string(b.Status), b.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("inserting booking: %w", err)
		}
		b.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return Booking{}, err
	}
	return b, nil
}

func (s *SQLiteStore) CancelBooking(ctx context.Context, bookingID int64, requester string, role contractx.Role) (Booking, bool, error) {
	var (
		b       Booking
		changed bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		b, err = getBookingSQL(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if err := authorizeCancel(b, requester, role); err != nil {
			return err
		}
		if !b.Confirmed() {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE bookings SET status = ? WHERE id = ?`, string(BookingCancelled), bookingID); err != nil {
			return fmt.Errorf("cancelling booking %d: %w", bookingID, err)
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

func (s *SQLiteStore) GetBooking(ctx context.Context, bookingID int64) (Booking, error) {
	return getBookingSQL(ctx, s.db, bookingID)
}

func getBookingSQL(ctx context.Context, q queryRower, bookingID int64) (Booking, error) {
	b, err := scanBooking(q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, bookingNotFound(bookingID)
	}
	if err != nil {
		return Booking{}, fmt.Errorf("querying booking %d: %w", bookingID, err)
	}
	return b, nil
}

func (s *SQLiteStore) ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1 = 1`
	var args []any
	if !filter.IncludeCancelled {
		query += ` AND status = ?`
		args = append(args, string(BookingConfirmed))
	}
	if h := NormalizeIdentity(filter.Holder); h != "" {
		query += ` AND holder = ?`
		args = append(args, h)
	}
	if filter.Date != nil {
		d := FormatDate(DateOf(*filter.Date))
		query += ` AND (check_in = ? OR check_out = ?)`
		args = append(args, d, d)
	}
	query += ` ORDER BY id ASC`
	return s.queryBookings(ctx, query, args...)
}

func (s *SQLiteStore) TodaysCheckins(ctx context.Context, today time.Time) ([]Booking, error) {
	return s.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE status = ? AND check_in = ? ORDER BY id ASC`,
		string(BookingConfirmed), FormatDate(DateOf(today)),
	)
}

func (s *SQLiteStore) queryBookings(ctx context.Context, query string, args ...any) ([]Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AvailabilityCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM rooms WHERE status = ? GROUP BY category`, string(RoomAvailable))
	if err != nil {
		return nil, fmt.Errorf("counting rooms: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int, 8)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		out[category] = n
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SeedRooms(ctx context.Context, rooms []Room) error {
	for _, r := range rooms {
		if err := r.validate(); err != nil {
			return err
		}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rooms {
			status, _ := ParseRoomStatus(string(r.Status))
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO rooms (id, category, rate, status) VALUES (?, ?, ?, ?)`,
				strings.TrimSpace(r.ID), r.Category, r.Rate, string(status),
			); err != nil {
				return fmt.Errorf("seeding room %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
