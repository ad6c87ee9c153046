package models

import "fmt"

// Company is one interview booth at the forum.
// CurrentEntryID is either empty or the ID of the single in-progress entry.
// ManualOrder marks an admin reorder: while set, waiting positions are
// allowed to disagree with score ordering, and the sweeper leaves them
// alone. The next natural recomputation clears it.
type Company struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Room           string `json:"room"`
	EstDurationMin int    `json:"est_duration_min"`
	Active         bool   `json:"active"`
	QueuePaused    bool   `json:"queue_paused"`
	EmergencyMode  bool   `json:"emergency_mode"`
	ManualOrder    bool   `json:"manual_order"`
	CurrentEntryID string `json:"current_entry_id,omitempty"`
}

// Validate checks the company fields admins can set.
func (c *Company) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("company name is required")
	}
	if c.Room == "" {
		return fmt.Errorf("company room is required")
	}
	if c.EstDurationMin < 5 || c.EstDurationMin > 120 {
		return fmt.Errorf("estimated duration must be 5-120 minutes, got %d", c.EstDurationMin)
	}
	return nil
}
