package capability

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

var statusCapability = contractx.Capability{
	Name:    "update_room_status",
	MinRole: contractx.RoleStaff,
	Fields: []contractx.Field{
		{Name: "room_id", Type: contractx.FieldString, Required: true},
		{Name: "status", Type: contractx.FieldString, Required: true, Enum: []string{"available", "cleaning"}},
	},
}

var cancelCapability = contractx.Capability{
	Name:    "cancel_booking",
	MinRole: contractx.RoleGuest,
	Fields: []contractx.Field{
		{Name: "booking_id", Type: contractx.FieldInteger, Required: true},
		{Name: "dry_run", Type: contractx.FieldBoolean},
	},
}

func TestValidateArgsNormalises(t *testing.T) {
	t.Parallel()

	out, err := ValidateArgs(statusCapability, map[string]any{
		"room_id": " 301 ",
		"status":  "Cleaning",
	})
	if err != nil {
		t.Fatalf("ValidateArgs() error = %v", err)
	}
	if out["room_id"] != "301" {
		t.Fatalf("room_id = %v", out["room_id"])
	}
	if out["status"] != "cleaning" {
		t.Fatalf("status = %v", out["status"])
	}
}

func TestValidateArgsIntegerFromJSONNumber(t *testing.T) {
	t.Parallel()

	out, err := ValidateArgs(cancelCapability, map[string]any{"booking_id": float64(7)})
	if err != nil {
		t.Fatalf("ValidateArgs() error = %v", err)
	}
	if out["booking_id"] != int64(7) {
		t.Fatalf("booking_id = %#v", out["booking_id"])
	}
}

func TestValidateArgsFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		desc contractx.Capability
		args map[string]any
	}{
		{"missing required", statusCapability, map[string]any{"room_id": "301"}},
		{"blank required", statusCapability, map[string]any{"room_id": "  ", "status": "available"}},
		{"enum mismatch", statusCapability, map[string]any{"room_id": "301", "status": "demolished"}},
		{"unknown field", statusCapability, map[string]any{"room_id": "301", "status": "available", "force": true}},
		{"fractional integer", cancelCapability, map[string]any{"booking_id": 1.5}},
		{"string integer", cancelCapability, map[string]any{"booking_id": "7"}},
		{"integer too large", cancelCapability, map[string]any{"booking_id": 1e19}},
		{"integer at 2^63", cancelCapability, map[string]any{"booking_id": 9223372036854775808.0}},
		{"integer too small", cancelCapability, map[string]any{"booking_id": -1e19}},
		{"wrong bool", cancelCapability, map[string]any{"booking_id": 7, "dry_run": "yes"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ValidateArgs(tc.desc, tc.args); !errors.Is(err, contractx.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestValidateArgsIntegerBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   any
		want int64
	}{
		{"int64 max", int64(math.MaxInt64), math.MaxInt64},
		{"json number max", json.Number("9223372036854775807"), math.MaxInt64},
		{"float min", float64(math.MinInt64), math.MinInt64},
		{"plain int", 42, 42},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, err := ValidateArgs(cancelCapability, map[string]any{"booking_id": tc.in})
			if err != nil {
				t.Fatalf("ValidateArgs() error = %v", err)
			}
			if out["booking_id"] != tc.want {
				t.Fatalf("booking_id = %#v, want %d", out["booking_id"], tc.want)
			}
		})
	}
}

func TestValidateArgsOptionalAbsent(t *testing.T) {
	t.Parallel()

	out, err := ValidateArgs(cancelCapability, map[string]any{"booking_id": 3})
	if err != nil {
		t.Fatalf("ValidateArgs() error = %v", err)
	}
	if _, ok := out["dry_run"]; ok {
		t.Fatalf("absent optional field should stay absent: %#v", out)
	}
}
