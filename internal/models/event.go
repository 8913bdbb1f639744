package models

import "time"

// Event kinds published after successful mutations.
const (
	EventCreated         = "created"
	EventUpdated         = "updated"
	EventDeleted         = "deleted"
	EventPropertyAdded   = "property_added"
	EventPropertyRemoved = "property_removed"
)

// Event describes a change to a stored document.
type Event struct {
	Event    string    `json:"event"`
	Resource string    `json:"resource"`
	Name     string    `json:"name"`
	Property string    `json:"property,omitempty"`
	Item     string    `json:"item,omitempty"`
	Time     time.Time `json:"time"`
}
