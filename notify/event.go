package notify

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"gymtalk/apperr"
	"gymtalk/models"
)

var validate = validator.New()

// Event is the wire form of a domain event published by the workout side of
// the application. The recipient is never part of it; the dispatcher derives
// it from the client's trainer assignment.
type Event struct {
	Type     models.EventType `json:"type" validate:"required,oneof=missed_workout workout_status_changed"`
	ClientID string           `json:"clientId" validate:"required"`
	Reason   string           `json:"reason,omitempty"`
	Status   string           `json:"status,omitempty" validate:"required_if=Type workout_status_changed"`
	Date     time.Time        `json:"date,omitempty"`
	Photo    *string          `json:"photo,omitempty"`
}

func (e Event) Validate() error {
	if err := validate.Struct(e); err != nil {
		return apperr.New(apperr.CodeValidation, "invalid event", err)
	}
	if e.Type == models.EventWorkoutStatusChanged && e.Date.IsZero() {
		return apperr.Validation("invalid event: date is required")
	}
	return nil
}

func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, apperr.New(apperr.CodeValidation, "malformed event", err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
