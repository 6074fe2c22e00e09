package models

import "time"

type EventType string

const (
	EventMissedWorkout        EventType = "missed_workout"
	EventWorkoutStatusChanged EventType = "workout_status_changed"
)

// Notification is a domain event addressed to a single user. It is never
// written to the message store. The unexported method closes the set of
// implementations to this package.
type Notification interface {
	Type() EventType
	notification()
}

type MissedWorkout struct {
	ClientID string `json:"clientId"`
	Reason   string `json:"reason"`
}

func (MissedWorkout) Type() EventType { return EventMissedWorkout }
func (MissedWorkout) notification()   {}

type WorkoutStatusChanged struct {
	ClientID   string    `json:"clientId"`
	ClientName string    `json:"clientName"`
	Status     string    `json:"status"`
	Date       time.Time `json:"date"`
	Photo      *string   `json:"photo,omitempty"`
}

func (WorkoutStatusChanged) Type() EventType { return EventWorkoutStatusChanged }
func (WorkoutStatusChanged) notification()   {}
