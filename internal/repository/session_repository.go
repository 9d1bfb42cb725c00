package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/trafficpilot-backend/internal/errors"
	"github.com/unclebandit/trafficpilot-backend/internal/model"
)

type SessionRepositoryInterface interface {
	Create(s *model.BotSession) error
	GetByID(id string) (*model.BotSession, error)
	AdvanceStage(id, stage string, at time.Time) error
	SetResult(id, resultURL string) error
	SetExtension(id, extensionID string) error
	UpdateFields(id string, fields map[string]string) error
	Finish(id, outcome, lastError string) error
	SweepStuck(olderThan time.Time) (int, error)
	CountByStage(campaignID int) (map[string]int, error)
	CountByOutcome(campaignID int) (map[string]int, error)
}

type SessionRepository struct {
	DB *sql.DB
}

// stage name -> timestamp column stamped when the stage is reached
var stageColumns = map[string]string{
	model.StageSearchInitiated: "search_initiated_at",
	model.StageSearchCompleted: "search_completed_at",
	model.StageResultResolved:  "result_resolved_at",
	model.StageTargetReached:   "target_reached_at",
	model.StagePluginLoaded:    "plugin_loaded_at",
	model.StagePluginActive:    "plugin_active_at",
	model.StageCompleted:       "completed_at",
}

func (r *SessionRepository) Create(s *model.BotSession) error {
	s.CreatedAt = time.Now()
	if s.Stage == "" {
		s.Stage = model.StageCreated
	}
	query := `
        INSERT INTO bot_sessions (id, campaign_id, stage, traffic_source, search_keyword, referrer, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.DB.Exec(query, s.ID, s.CampaignID, s.Stage, s.TrafficSource, s.SearchKeyword, s.Referrer, s.CreatedAt)
	return err
}

func (r *SessionRepository) GetByID(id string) (*model.BotSession, error) {
	query := `
        SELECT id, campaign_id, stage, outcome, result_url, extension_id,
               traffic_source, search_keyword, referrer, last_error,
               search_initiated_at, search_completed_at, result_resolved_at,
               target_reached_at, plugin_loaded_at, plugin_active_at,
               completed_at, created_at
        FROM bot_sessions WHERE id=$1
    `
	var s model.BotSession
	err := r.DB.QueryRow(query, id).Scan(
		&s.ID, &s.CampaignID, &s.Stage, &s.Outcome, &s.ResultURL, &s.ExtensionID,
		&s.TrafficSource, &s.SearchKeyword, &s.Referrer, &s.LastError,
		&s.SearchInitiated, &s.SearchCompleted, &s.ResultResolvedAt,
		&s.TargetReachedAt, &s.PluginLoadedAt, &s.PluginActiveAt,
		&s.CompletedAt, &s.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewSessionNotFound(id)
		}
		return nil, err
	}
	return &s, nil
}

// AdvanceStage moves a session to the given stage and stamps its
// timestamp column. The update only matches rows still at an earlier
// stage, so concurrent advances (runner vs. reporting agent) can never
// regress the stage, and COALESCE keeps the first stamp on duplicate
// delivery. A row already at or past the stage is a silent no-op.
func (r *SessionRepository) AdvanceStage(id, stage string, at time.Time) error {
	col, ok := stageColumns[stage]
	if !ok {
		return fmt.Errorf("no timestamp column for stage %q", stage)
	}
	query := fmt.Sprintf(`UPDATE bot_sessions SET stage=$1, %s=COALESCE(%s, $2) WHERE id=$3 AND stage = ANY($4)`, col, col)
	_, err := r.DB.Exec(query, stage, at, id, pq.Array(model.StagesBefore(stage)))
	return err
}

func (r *SessionRepository) SetResult(id, resultURL string) error {
	query := `UPDATE bot_sessions SET result_url=$1 WHERE id=$2`
	_, err := r.DB.Exec(query, resultURL, id)
	return err
}

func (r *SessionRepository) SetExtension(id, extensionID string) error {
	query := `UPDATE bot_sessions SET extension_id=$1 WHERE id=$2`
	_, err := r.DB.Exec(query, extensionID, id)
	return err
}

// columns clients may patch through the tracking endpoint's update path
var updatableColumns = map[string]bool{
	"result_url":   true,
	"extension_id": true,
	"referrer":     true,
	"last_error":   true,
}

func (r *SessionRepository) UpdateFields(id string, fields map[string]string) error {
	set := ""
	args := []any{}
	for column, value := range fields {
		if !updatableColumns[column] {
			return fmt.Errorf("field %q is not updatable", column)
		}
		if set != "" {
			set += ", "
		}
		args = append(args, value)
		set += fmt.Sprintf("%s=$%d", column, len(args))
	}
	if set == "" {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE bot_sessions SET %s WHERE id=$%d`, set, len(args))
	res, err := r.DB.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewSessionNotFound(id)
	}
	return nil
}

func (r *SessionRepository) Finish(id, outcome, lastError string) error {
	query := `
        UPDATE bot_sessions
        SET outcome=$1, last_error=$2, completed_at=COALESCE(completed_at, NOW())
        WHERE id=$3 AND outcome=''
    `
	_, err := r.DB.Exec(query, outcome, lastError, id)
	return err
}

// SweepStuck marks sessions that never reached a terminal outcome and
// are older than the cutoff as timed_out. Returns how many were swept.
func (r *SessionRepository) SweepStuck(olderThan time.Time) (int, error) {
	query := `
        UPDATE bot_sessions
        SET outcome=$1, last_error='session exceeded maximum age', completed_at=NOW()
        WHERE outcome='' AND created_at < $2
    `
	res, err := r.DB.Exec(query, model.OutcomeTimedOut, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *SessionRepository) CountByStage(campaignID int) (map[string]int, error) {
	return r.countBy("stage", campaignID)
}

func (r *SessionRepository) CountByOutcome(campaignID int) (map[string]int, error) {
	return r.countBy("outcome", campaignID)
}

func (r *SessionRepository) countBy(column string, campaignID int) (map[string]int, error) {
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM bot_sessions WHERE campaign_id=$1 GROUP BY %s`, column, column)
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		if key == "" {
			key = "in_flight"
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

var _ SessionRepositoryInterface = (*SessionRepository)(nil)
