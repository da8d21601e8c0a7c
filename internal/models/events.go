package models

import "time"

// EventType names a lottery notification.
type EventType string

const (
	EventEntered         EventType = "Entered"
	EventUpkeepPerformed EventType = "UpkeepPerformed"
	EventWinnerSelected  EventType = "WinnerSelected"
)

// Event is emitted after an operation commits.
type Event struct {
	Type      EventType `json:"type"`
	Player    Address   `json:"player,omitempty"`
	RequestID RequestID `json:"requestId,omitempty"`
	Winner    Address   `json:"winner,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	At        time.Time `json:"at"`
}
