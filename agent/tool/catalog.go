package tool

import (
	capabilityx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/capability"
	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

const (
	ToolSearchRooms           = "search_rooms"
	ToolGetRoomDetails        = "get_room_details"
	ToolQuoteStay             = "quote_stay"
	ToolBookRoom              = "book_room"
	ToolCancelBooking         = "cancel_booking"
	ToolGetMyBookings         = "get_my_bookings"
	ToolAnswerFAQ             = "answer_faq"
	ToolListBookings          = "list_bookings"
	ToolGetTodaysCheckins     = "get_todays_checkins"
	ToolGetAvailabilityCounts = "get_availability_counts"
	ToolUpdateRoomStatus      = "update_room_status"
)

var (
	roomIDField   = contractx.Field{Name: "room_id", Type: contractx.FieldString, Required: true, Description: "Room number, e.g. 201"}
	checkInField  = contractx.Field{Name: "check_in", Type: contractx.FieldString, Required: true, Description: "Check-in date, YYYY-MM-DD"}
	checkOutField = contractx.Field{Name: "check_out", Type: contractx.FieldString, Required: true, Description: "Check-out date, YYYY-MM-DD"}
)

// Capabilities lists every operation in registration order: guest tools first.
func Capabilities() []contractx.Capability {
	return []contractx.Capability{
		{
			Name:        ToolSearchRooms,
			MinRole:     contractx.RoleGuest,
			Description: "Search rooms that are currently available, optionally by category and maximum nightly rate.",
			Fields: []contractx.Field{
				{Name: "category", Type: contractx.FieldString, Description: "Single, Double, Suite, Deluxe or Presidential"},
				{Name: "max_rate", Type: contractx.FieldNumber, Description: "Maximum nightly rate"},
			},
		},
		{
			Name:        ToolGetRoomDetails,
			MinRole:     contractx.RoleGuest,
			Description: "Get rate, status and a description of one room.",
			Fields:      []contractx.Field{roomIDField},
		},
		{
			Name:        ToolQuoteStay,
			MinRole:     contractx.RoleGuest,
			Description: "Price a stay in a room for the given dates and say whether it can be booked.",
			Fields:      []contractx.Field{roomIDField, checkInField, checkOutField},
		},
		{
			Name:        ToolBookRoom,
			MinRole:     contractx.RoleGuest,
			Description: "Book a room for the given dates. The booking is made for the current user unless staff name another holder.",
			Fields: []contractx.Field{
				roomIDField, checkInField, checkOutField,
				{Name: "holder", Type: contractx.FieldString, Description: "Email of the guest the booking is for (staff only)"},
			},
		},
		{
			Name:        ToolCancelBooking,
			MinRole:     contractx.RoleGuest,
			Description: "Cancel a booking by its number. Guests may only cancel their own bookings.",
			Fields: []contractx.Field{
				{Name: "booking_id", Type: contractx.FieldInteger, Required: true, Description: "Booking number"},
			},
		},
		{
			Name:        ToolGetMyBookings,
			MinRole:     contractx.RoleGuest,
			Description: "List the current user's bookings, including cancelled ones.",
		},
		{
			Name:        ToolAnswerFAQ,
			MinRole:     contractx.RoleGuest,
			Description: "Look up hotel policies and amenities (check-in times, parking, pets, breakfast, wifi and so on).",
			Fields: []contractx.Field{
				{Name: "question", Type: contractx.FieldString, Required: true, Description: "The guest's question"},
			},
		},
		{
			Name:        ToolListBookings,
			MinRole:     contractx.RoleStaff,
			Description: "List bookings, optionally those starting or ending on a date or held by one guest.",
			Fields: []contractx.Field{
				{Name: "date", Type: contractx.FieldString, Description: "Check-in or check-out date, YYYY-MM-DD"},
				{Name: "holder", Type: contractx.FieldString, Description: "Guest email"},
				{Name: "include_cancelled", Type: contractx.FieldBoolean, Description: "Include cancelled bookings"},
			},
		},
		{
			Name:        ToolGetTodaysCheckins,
			MinRole:     contractx.RoleStaff,
			Description: "List confirmed bookings checking in today.",
		},
		{
			Name:        ToolGetAvailabilityCounts,
			MinRole:     contractx.RoleStaff,
			Description: "Count rooms that are available right now, per category.",
		},
		{
			Name:        ToolUpdateRoomStatus,
			MinRole:     contractx.RoleStaff,
			Description: "Set a room's housekeeping status.",
			Fields: []contractx.Field{
				roomIDField,
				{Name: "status", Type: contractx.FieldString, Required: true, Enum: []string{"available", "cleaning", "occupied", "maintenance"}},
			},
		},
	}
}

// NewRegistry returns a sealed registry holding the full catalog.
func NewRegistry() (*capabilityx.Registry, error) {
	reg := capabilityx.NewRegistry()
	for _, c := range Capabilities() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	reg.Seal()
	return reg, nil
}
