package contract

import (
	"errors"
	"fmt"
)

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")
	ErrInvalidDateRange       = errors.New("invalid date range")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrRoomUnavailable        = errors.New("room unavailable")
	ErrUnreachableService     = errors.New("service unreachable")
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")
	ErrDuplicateCapability    = errors.New("duplicate capability")
	ErrRegistrySealed         = errors.New("capability registry is sealed")
)

// Unknown names fail closed: they match ErrForbidden as well.
var (
	ErrUnknownCapability = fmt.Errorf("%w: unknown capability", ErrForbidden)
	ErrUnknownIdentity   = fmt.Errorf("%w: unknown identity", ErrNotFound)
)

// ObservationKind classifies an error for the observation fed back to the model.
func ObservationKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrSchemaViolation):
		return "invalid_arguments"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidDateRange):
		return "invalid_date_range"
	case errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, ErrRoomUnavailable):
		return "room_unavailable"
	case errors.Is(err, ErrUnreachableService):
		return "unreachable"
	default:
		return "error"
	}
}
