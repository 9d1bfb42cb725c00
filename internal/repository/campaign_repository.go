package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/trafficpilot-backend/internal/errors"
	"github.com/unclebandit/trafficpilot-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)
	ListActive() ([]*model.Campaign, error)
	GetByID(id int) (*model.Campaign, error)
	Create(c *model.Campaign) error
	UpdateStatus(campaignID int, status string) error

	// Scheduling
	Activate(campaignID int) (*model.Campaign, error)
	Pause(campaignID int) error
	MarkCompleted(campaignID int) error
	ReserveSession(campaignID int) (bool, error)
	RecordScheduleError(campaignID int, msg string) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, owner_id, name, status, target_url, search_keyword,
	total_sessions, delivered_sessions, sessions_per_tick, geo_location,
	session_duration_min, session_duration_max, window_start, window_end,
	last_schedule_error, started_at, completed_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Status, &c.TargetURL, &c.SearchKeyword,
		&c.TotalSessions, &c.DeliveredSessions, &c.SessionsPerTick, &c.GeoLocation,
		&c.SessionDurationMin, &c.SessionDurationMax, &c.WindowStart, &c.WindowEnd,
		&c.LastScheduleError, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	if c.SessionsPerTick <= 0 {
		c.SessionsPerTick = 10
	}
	query := `
        INSERT INTO campaigns (owner_id, name, status, target_url, search_keyword,
            total_sessions, sessions_per_tick, geo_location,
            session_duration_min, session_duration_max, window_start, window_end, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING id
    `
	return r.DB.QueryRow(query, c.OwnerID, c.Name, c.Status, c.TargetURL, c.SearchKeyword,
		c.TotalSessions, c.SessionsPerTick, c.GeoLocation,
		c.SessionDurationMin, c.SessionDurationMax, c.WindowStart, c.WindowEnd, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) ListActive() ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 ORDER BY id`
	rows, err := r.DB.Query(query, model.CampaignStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, status, time.Now(), campaignID)
	return err
}

// ====================== Scheduling ======================

// Activate flips a draft campaign to active and stamps started_at. The
// transition is conditional on the draft status so a second activation
// never re-stamps or double-starts counters.
func (r *CampaignRepository) Activate(campaignID int) (*model.Campaign, error) {
	query := `
        UPDATE campaigns
        SET status=$1, started_at=NOW(), updated_at=NOW()
        WHERE id=$2 AND status=$3
        RETURNING ` + campaignColumns
	c, err := scanCampaign(r.DB.QueryRow(query, model.CampaignStatusActive, campaignID, model.CampaignStatusDraft))
	if err == nil {
		return c, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// Distinguish "missing" from "not draft".
	existing, err := r.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	return nil, &appErrors.ErrCampaignNotActivatable{CampaignID: campaignID, Status: existing.Status}
}

func (r *CampaignRepository) Pause(campaignID int) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	res, err := r.DB.Exec(query, model.CampaignStatusPaused, campaignID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	return nil
}

func (r *CampaignRepository) MarkCompleted(campaignID int) error {
	query := `
        UPDATE campaigns
        SET status=$1, completed_at=NOW(), updated_at=NOW()
        WHERE id=$2 AND status=$3
    `
	_, err := r.DB.Exec(query, model.CampaignStatusCompleted, campaignID, model.CampaignStatusActive)
	return err
}

// ReserveSession atomically claims one unit of session volume. It is the
// single conditional update that keeps delivered_sessions under
// total_sessions no matter how many schedulers tick concurrently.
func (r *CampaignRepository) ReserveSession(campaignID int) (bool, error) {
	query := `
        UPDATE campaigns
        SET delivered_sessions = delivered_sessions + 1, updated_at=NOW()
        WHERE id=$1 AND delivered_sessions < total_sessions
    `
	res, err := r.DB.Exec(query, campaignID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CampaignRepository) RecordScheduleError(campaignID int, msg string) error {
	query := `UPDATE campaigns SET last_schedule_error=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, msg, campaignID)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
