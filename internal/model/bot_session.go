// internal/model/bot_session.go
package model

import (
	"fmt"
	"time"
)

// Session stages, in order. Each stage is reachable only from its
// immediate predecessor; failed/timed_out absorb from anywhere.
const (
	StageCreated         = "created"
	StageSearchInitiated = "search_initiated"
	StageSearchCompleted = "search_completed"
	StageResultResolved  = "result_resolved"
	StageTargetReached   = "target_reached"
	StagePluginLoaded    = "plugin_loaded"
	StagePluginActive    = "plugin_active"
	StageCompleted       = "completed"
)

// Terminal outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
	OutcomeTimedOut = "timed_out"
)

// ResultNotFound is the sentinel result URL recorded when no search
// result matched the target and the session fell back to direct
// navigation.
const ResultNotFound = "not_found"

// Session events accepted from the external reporting agent.
const (
	EventSearchCompleted   = "google_search_completed"
	EventResultClicked     = "google_result_clicked"
	EventTargetSiteReached = "target_site_reached"
	EventPluginLoaded      = "plugin_loaded"
	EventPluginActive      = "plugin_active"
)

var stageOrder = []string{
	StageCreated,
	StageSearchInitiated,
	StageSearchCompleted,
	StageResultResolved,
	StageTargetReached,
	StagePluginLoaded,
	StagePluginActive,
	StageCompleted,
}

var eventStages = map[string]string{
	EventSearchCompleted:   StageSearchCompleted,
	EventResultClicked:     StageResultResolved,
	EventTargetSiteReached: StageTargetReached,
	EventPluginLoaded:      StagePluginLoaded,
	EventPluginActive:      StagePluginActive,
}

// StageIndex returns the position of a stage in the ordered machine,
// or -1 for unknown stages.
func StageIndex(stage string) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// StagesBefore lists every stage strictly earlier than the given one,
// in order. Empty for unknown stages and for the initial stage.
func StagesBefore(stage string) []string {
	i := StageIndex(stage)
	if i <= 0 {
		return nil
	}
	out := make([]string, i)
	copy(out, stageOrder[:i])
	return out
}

// StageForEvent maps an external event name to the stage it reports.
// ok is false for unknown event names.
func StageForEvent(event string) (string, bool) {
	stage, ok := eventStages[event]
	return stage, ok
}

// CheckTransition validates moving a session from one stage to another.
// Re-reaching the current or an earlier stage is an idempotent no-op
// (advance=false, err=nil). Skipping a stage is an error.
func CheckTransition(from, to string) (advance bool, err error) {
	fi, ti := StageIndex(from), StageIndex(to)
	if fi < 0 || ti < 0 {
		return false, fmt.Errorf("unknown stage in transition %q -> %q", from, to)
	}
	if ti <= fi {
		return false, nil // duplicate delivery, already reached
	}
	if ti != fi+1 {
		return false, fmt.Errorf("illegal stage transition %q -> %q", from, to)
	}
	return true, nil
}

type BotSession struct {
	ID               string     `db:"id" json:"id"`
	CampaignID       int        `db:"campaign_id" json:"campaign_id"`
	Stage            string     `db:"stage" json:"stage"`
	Outcome          string     `db:"outcome" json:"outcome,omitempty"`
	ResultURL        string     `db:"result_url" json:"result_url,omitempty"`
	ExtensionID      string     `db:"extension_id" json:"extension_id,omitempty"`
	TrafficSource    string     `db:"traffic_source" json:"traffic_source"`
	SearchKeyword    string     `db:"search_keyword" json:"search_keyword,omitempty"`
	Referrer         string     `db:"referrer" json:"referrer,omitempty"`
	LastError        string     `db:"last_error" json:"last_error,omitempty"`
	SearchInitiated  *time.Time `db:"search_initiated_at" json:"search_initiated_at,omitempty"`
	SearchCompleted  *time.Time `db:"search_completed_at" json:"search_completed_at,omitempty"`
	ResultResolvedAt *time.Time `db:"result_resolved_at" json:"result_resolved_at,omitempty"`
	TargetReachedAt  *time.Time `db:"target_reached_at" json:"target_reached_at,omitempty"`
	PluginLoadedAt   *time.Time `db:"plugin_loaded_at" json:"plugin_loaded_at,omitempty"`
	PluginActiveAt   *time.Time `db:"plugin_active_at" json:"plugin_active_at,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// Terminal reports whether the session has reached a terminal outcome.
func (s *BotSession) Terminal() bool {
	return s.Outcome != ""
}
