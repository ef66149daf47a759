package hotel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
	"golang.org/x/sync/errgroup"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func seededStore(t *testing.T, open func(t *testing.T) Store) Store {
	t.Helper()
	s := open(t)
	rooms, err := DefaultRooms()
	require.NoError(t, err)
	require.NoError(t, s.SeedRooms(context.Background(), rooms))
	return s
}

// runStoreSuite exercises the behaviour every backend must share.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("FindRoomsOrderedByRate", func(t *testing.T) {
		s := seededStore(t, open)
		rooms, err := s.FindRooms(ctx, RoomFilter{})
		require.NoError(t, err)
		require.Len(t, rooms, 8)
		assert.Equal(t, "101", rooms[0].ID)
		assert.Equal(t, "102", rooms[1].ID)
		for i := 1; i < len(rooms); i++ {
			assert.LessOrEqual(t, rooms[i-1].Rate, rooms[i].Rate)
		}
		for _, r := range rooms {
			assert.Equal(t, RoomAvailable, r.Status)
		}
	})

	t.Run("FindRoomsFilters", func(t *testing.T) {
		s := seededStore(t, open)
		maxRate := 150.0
		rooms, err := s.FindRooms(ctx, RoomFilter{Category: "double", MaxRate: &maxRate})
		require.NoError(t, err)
		require.Len(t, rooms, 2)
		assert.Equal(t, "Double", rooms[0].Category)

		maxRate = 10
		rooms, err = s.FindRooms(ctx, RoomFilter{MaxRate: &maxRate})
		require.NoError(t, err)
		assert.Empty(t, rooms)
	})

	t.Run("GetRoomNotFound", func(t *testing.T) {
		s := seededStore(t, open)
		_, err := s.GetRoom(ctx, "999")
		require.ErrorIs(t, err, contractx.ErrNotFound)
	})

	t.Run("SetRoomStatus", func(t *testing.T) {
		s := seededStore(t, open)
		prev, err := s.SetRoomStatus(ctx, "302", RoomAvailable)
		require.NoError(t, err)
		assert.Equal(t, RoomCleaning, prev)

		room, err := s.GetRoom(ctx, "302")
		require.NoError(t, err)
		assert.Equal(t, RoomAvailable, room.Status)

		_, err = s.SetRoomStatus(ctx, "302", "demolished")
		require.ErrorIs(t, err, contractx.ErrInvalidStatus)
		_, err = s.SetRoomStatus(ctx, "999", RoomCleaning)
		require.ErrorIs(t, err, contractx.ErrNotFound)
		_, err = s.SetRoomStatus(ctx, "999", "demolished")
		require.ErrorIs(t, err, contractx.ErrInvalidStatus, "status is validated before the room lookup")
	})

	t.Run("HalfOpenOverlap", func(t *testing.T) {
		s := seededStore(t, open)
		first, err := s.CreateBooking(ctx, BookingRequest{
			RoomID: "101", Holder: "guest@hotel.com",
			CheckIn: date(t, "2026-03-20"), CheckOut: date(t, "2026-03-22"),
		})
		require.NoError(t, err)
		assert.Equal(t, BookingConfirmed, first.Status)
		assert.Equal(t, 2, first.Nights())

		_, err = s.CreateBooking(ctx, BookingRequest{
			RoomID: "101", Holder: "john@email.com",
			CheckIn: date(t, "2026-03-21"), CheckOut: date(t, "2026-03-23"),
		})
		require.ErrorIs(t, err, contractx.ErrRoomUnavailable)

		second, err := s.CreateBooking(ctx, BookingRequest{
			RoomID: "101", Holder: "john@email.com",
			CheckIn: date(t, "2026-03-22"), CheckOut: date(t, "2026-03-24"),
		})
		require.NoError(t, err)
		assert.Greater(t, second.ID, first.ID)

		overlap, err := s.CheckOverlap(ctx, "101", date(t, "2026-03-19"), date(t, "2026-03-20"))
		require.NoError(t, err)
		assert.False(t, overlap)
		overlap, err = s.CheckOverlap(ctx, "101", date(t, "2026-03-19"), date(t, "2026-03-21"))
		require.NoError(t, err)
		assert.True(t, overlap)
	})

	t.Run("CreateBookingRejections", func(t *testing.T) {
		s := seededStore(t, open)
		_, err := s.CreateBooking(ctx, BookingRequest{
			RoomID: "101", Holder: "guest@hotel.com",
			CheckIn: date(t, "2026-03-22"), CheckOut: date(t, "2026-03-22"),
		})
		require.ErrorIs(t, err, contractx.ErrInvalidDateRange)

		_, err = s.CreateBooking(ctx, BookingRequest{
			RoomID: "999", Holder: "guest@hotel.com",
			CheckIn: date(t, "2026-03-20"), CheckOut: date(t, "2026-03-22"),
		})
		require.ErrorIs(t, err, contractx.ErrNotFound)

		_, err = s.CreateBooking(ctx, BookingRequest{
			RoomID: "402", Holder: "guest@hotel.com",
			CheckIn: date(t, "2026-03-20"), CheckOut: date(t, "2026-03-22"),
		})
		require.ErrorIs(t, err, contractx.ErrRoomUnavailable, "occupied rooms cannot be booked")
	})

	t.Run("CancelIsIdempotent", func(t *testing.T) {
		s := seededStore(t, open)
		b, err := s.CreateBooking(ctx, BookingRequest{
			RoomID: "201", Holder: "Guest@Hotel.com",
			CheckIn: date(t, "2026-04-01"), CheckOut: date(t, "2026-04-03"),
		})
		require.NoError(t, err)
		assert.Equal(t, "guest@hotel.com", b.Holder)

		_, _, err = s.CancelBooking(ctx, b.ID, "john@email.com", contractx.RoleGuest)
		require.ErrorIs(t, err, contractx.ErrForbidden)

		got, changed, err := s.CancelBooking(ctx, b.ID, "guest@hotel.com", contractx.RoleGuest)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, BookingCancelled, got.Status)

		got, changed, err = s.CancelBooking(ctx, b.ID, "guest@hotel.com", contractx.RoleGuest)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, BookingCancelled, got.Status)

		_, _, err = s.CancelBooking(ctx, 9999, "staff@hotel.com", contractx.RoleStaff)
		require.ErrorIs(t, err, contractx.ErrNotFound)

		// the freed range can be booked again
		_, err = s.CreateBooking(ctx, BookingRequest{
			RoomID: "201", Holder: "john@email.com",
			CheckIn: date(t, "2026-04-01"), CheckOut: date(t, "2026-04-03"),
		})
		require.NoError(t, err)
	})

	t.Run("StaffMayCancelAnyBooking", func(t *testing.T) {
		s := seededStore(t, open)
		b, err := s.CreateBooking(ctx, BookingRequest{
			RoomID: "202", Holder: "john@email.com",
			CheckIn: date(t, "2026-05-01"), CheckOut: date(t, "2026-05-02"),
		})
		require.NoError(t, err)
		_, changed, err := s.CancelBooking(ctx, b.ID, "staff@hotel.com", contractx.RoleStaff)
		require.NoError(t, err)
		assert.True(t, changed)
	})

	t.Run("ListingsAndCounts", func(t *testing.T) {
		s := seededStore(t, open)
		mk := func(room, holder, in, out string) Booking {
			b, err := s.CreateBooking(ctx, BookingRequest{
				RoomID: room, Holder: holder, CheckIn: date(t, in), CheckOut: date(t, out),
			})
			require.NoError(t, err)
			return b
		}
		a := mk("101", "guest@hotel.com", "2026-06-01", "2026-06-03")
		b := mk("201", "john@email.com", "2026-06-03", "2026-06-05")
		c := mk("301", "guest@hotel.com", "2026-06-10", "2026-06-12")
		_, _, err := s.CancelBooking(ctx, c.ID, "guest@hotel.com", contractx.RoleGuest)
		require.NoError(t, err)

		mine, err := s.ListBookings(ctx, BookingFilter{Holder: "GUEST@hotel.com", IncludeCancelled: true})
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, a.ID, mine[0].ID)
		assert.Equal(t, c.ID, mine[1].ID)

		all, err := s.ListBookings(ctx, BookingFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)

		d := date(t, "2026-06-03")
		onDate, err := s.ListBookings(ctx, BookingFilter{Date: &d})
		require.NoError(t, err)
		require.Len(t, onDate, 2, "check-out of one stay and check-in of the next")
		assert.Equal(t, a.ID, onDate[0].ID)
		assert.Equal(t, b.ID, onDate[1].ID)

		arrivals, err := s.TodaysCheckins(ctx, date(t, "2026-06-03").Add(15*time.Hour))
		require.NoError(t, err)
		require.Len(t, arrivals, 1)
		assert.Equal(t, b.ID, arrivals[0].ID)

		counts, err := s.AvailabilityCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"Single": 2, "Double": 2, "Suite": 1, "Deluxe": 1, "Presidential": 2}, counts)
	})

	t.Run("SeedKeepsExistingRooms", func(t *testing.T) {
		s := seededStore(t, open)
		_, err := s.SetRoomStatus(ctx, "101", RoomMaintenance)
		require.NoError(t, err)
		rooms, err := DefaultRooms()
		require.NoError(t, err)
		require.NoError(t, s.SeedRooms(ctx, rooms))

		room, err := s.GetRoom(ctx, "101")
		require.NoError(t, err)
		assert.Equal(t, RoomMaintenance, room.Status)
	})

	t.Run("ConcurrentCreateSingleWinner", func(t *testing.T) {
		s := seededStore(t, open)
		const workers = 16
		in, out := date(t, "2026-07-01"), date(t, "2026-07-05")

		var g errgroup.Group
		results := make([]error, workers)
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				_, err := s.CreateBooking(ctx, BookingRequest{
					RoomID: "501", Holder: "guest@hotel.com",
					CheckIn: in, CheckOut: out,
				})
				results[i] = err
				return nil
			})
		}
		require.NoError(t, g.Wait())

		wins := 0
		for _, err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, contractx.ErrRoomUnavailable):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)

		bookings, err := s.ListBookings(ctx, BookingFilter{})
		require.NoError(t, err)
		assert.Len(t, bookings, 1)
	})
}
