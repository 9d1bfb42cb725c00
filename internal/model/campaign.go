// internal/model/campaign.go
package model

import "time"

// Campaign statuses. A campaign starts as draft, is explicitly activated,
// and ends in completed, paused or failed. The scheduler never moves a
// campaign out of paused or failed on its own.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
	CampaignStatusFailed    = "failed"
)

type Campaign struct {
	ID                 int        `db:"id" json:"id"`
	OwnerID            int        `db:"owner_id" json:"owner_id"`
	Name               string     `db:"name" json:"name"`
	Status             string     `db:"status" json:"status"`
	TargetURL          string     `db:"target_url" json:"target_url"`
	SearchKeyword      string     `db:"search_keyword" json:"search_keyword"`
	TotalSessions      int        `db:"total_sessions" json:"total_sessions"`
	DeliveredSessions  int        `db:"delivered_sessions" json:"delivered_sessions"`
	SessionsPerTick    int        `db:"sessions_per_tick" json:"sessions_per_tick"`
	GeoLocation        string     `db:"geo_location" json:"geo_location"`
	SessionDurationMin int        `db:"session_duration_min" json:"session_duration_min"`
	SessionDurationMax int        `db:"session_duration_max" json:"session_duration_max"`
	WindowStart        *time.Time `db:"window_start" json:"window_start,omitempty"`
	WindowEnd          *time.Time `db:"window_end" json:"window_end,omitempty"`
	LastScheduleError  string     `db:"last_schedule_error" json:"last_schedule_error,omitempty"`
	StartedAt          *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// RemainingSessions is how many sessions the campaign still owes.
func (c *Campaign) RemainingSessions() int {
	remaining := c.TotalSessions - c.DeliveredSessions
	if remaining < 0 {
		return 0
	}
	return remaining
}

// InWindow reports whether the campaign's scheduling window permits
// activity at the given instant. Nil bounds are open-ended.
func (c *Campaign) InWindow(now time.Time) bool {
	if c.WindowStart != nil && now.Before(*c.WindowStart) {
		return false
	}
	if c.WindowEnd != nil && now.After(*c.WindowEnd) {
		return false
	}
	return true
}
