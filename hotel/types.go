// Package hotel is the resource store: rooms, bookings and the rules that
// keep confirmed stays on one room from overlapping.
package hotel

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

const DateLayout = "2006-01-02"

type RoomStatus string

const (
	RoomAvailable   RoomStatus = "available"
	RoomCleaning    RoomStatus = "cleaning"
	RoomOccupied    RoomStatus = "occupied"
	RoomMaintenance RoomStatus = "maintenance"
)

var RoomStatuses = []RoomStatus{RoomAvailable, RoomCleaning, RoomOccupied, RoomMaintenance}

func ParseRoomStatus(s string) (RoomStatus, error) {
	status := RoomStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range RoomStatuses {
		if status == known {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", contractx.ErrInvalidStatus, s)
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

type Room struct {
	ID       string     `json:"id" yaml:"id"`
	Category string     `json:"category" yaml:"category"`
	Rate     float64    `json:"rate" yaml:"rate"`
	Status   RoomStatus `json:"status" yaml:"status"`
}

func (r Room) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: room id is empty", contractx.ErrValidation)
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("%w: room %s has no category", contractx.ErrValidation, r.ID)
	}
	if r.Rate < 0 {
		return fmt.Errorf("%w: room %s has negative rate", contractx.ErrValidation, r.ID)
	}
	if _, err := ParseRoomStatus(string(r.Status)); err != nil {
		return fmt.Errorf("room %s: %w", r.ID, err)
	}
	return nil
}

type Booking struct {
	ID        int64         `json:"id"`
	RoomID    string        `json:"room_id"`
	Holder    string        `json:"holder"`
	CheckIn   time.Time     `json:"check_in"`
	CheckOut  time.Time     `json:"check_out"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

func (b Booking) Nights() int {
	return Nights(b.CheckIn, b.CheckOut)
}

func (b Booking) Confirmed() bool {
	return b.Status == BookingConfirmed
}

type BookingRequest struct {
	RoomID   string
	Holder   string
	CheckIn  time.Time
	CheckOut time.Time
}

type RoomFilter struct {
	Category string
	MaxRate  *float64
}

func (f RoomFilter) match(r Room) bool {
	if r.Status != RoomAvailable {
		return false
	}
	if c := strings.TrimSpace(f.Category); c != "" && !strings.EqualFold(c, r.Category) {
		return false
	}
	if f.MaxRate != nil && r.Rate > *f.MaxRate {
		return false
	}
	return true
}

type BookingFilter struct {
	Holder           string
	Date             *time.Time
	IncludeCancelled bool
}

func (f BookingFilter) match(b Booking) bool {
	if !f.IncludeCancelled && b.Status != BookingConfirmed {
		return false
	}
	if h := NormalizeIdentity(f.Holder); h != "" && h != b.Holder {
		return false
	}
	if f.Date != nil {
		d := DateOf(*f.Date)
		if !b.CheckIn.Equal(d) && !b.CheckOut.Equal(d) {
			return false
		}
	}
	return true
}

// ParseDate reads a civil date in YYYY-MM-DD form.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", contractx.ErrValidation, s)
	}
	return t.UTC(), nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateOf drops the clock part of t, keeping its calendar day in UTC midnight form.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ValidRange(in, out time.Time) error {
	if !DateOf(out).After(DateOf(in)) {
		return fmt.Errorf("%w: check-out %s must be after check-in %s", contractx.ErrInvalidDateRange, FormatDate(out), FormatDate(in))
	}
	return nil
}

// Overlaps treats both stays as half-open [in, out): a checkout on the day of
// another check-in is not a conflict.
func Overlaps(aIn, aOut, bIn, bOut time.Time) bool {
	return aIn.Before(bOut) && bIn.Before(aOut)
}

func Nights(in, out time.Time) int {
	return int(DateOf(out).Sub(DateOf(in)).Hours() / 24)
}

func NormalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var categoryDescriptions = map[string]string{
	"single":       "Perfect for solo travelers. Includes one queen bed, work desk, and ensuite bathroom.",
	"double":       "Ideal for couples or friends. Features two double beds, sitting area, and city view.",
	"suite":        "Spacious suite with separate living area, king bed, minibar, and premium amenities.",
	"deluxe":       "Luxury room with king bed, sofa, premium linens, and stunning views.",
	"presidential": "Ultimate luxury with separate bedroom, living room, dining area, and butler service.",
}

func CategoryDescription(category string) string {
	return categoryDescriptions[strings.ToLower(strings.TrimSpace(category))]
}
