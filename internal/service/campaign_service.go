// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/unclebandit/trafficpilot-backend/internal/model"
	"github.com/unclebandit/trafficpilot-backend/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	SessionRepo  repository.SessionRepositoryInterface
	Scheduler    *CampaignScheduler
}

// Result struct for ActivateCampaign
type ActivateCampaignResult struct {
	Campaign  *model.Campaign `json:"campaign"`
	Scheduler *TickResult     `json:"scheduler"`
}

type CampaignDetails struct {
	*model.Campaign
	StageStats   map[string]int `json:"stage_stats"`
	OutcomeStats map[string]int `json:"outcome_stats"`
}

type CreateCampaignInput struct {
	OwnerID            int     `json:"owner_id"`
	Name               string  `json:"name"`
	TargetURL          string  `json:"target_url"`
	SearchKeyword      string  `json:"search_keyword"`
	TotalSessions      int     `json:"total_sessions"`
	SessionsPerTick    int     `json:"sessions_per_tick"`
	GeoLocation        string  `json:"geo_location"`
	SessionDurationMin int     `json:"session_duration_min"`
	SessionDurationMax int     `json:"session_duration_max"`
	WindowStart        *string `json:"window_start"`
	WindowEnd          *string `json:"window_end"`
}

func (s *CampaignService) CreateCampaign(in CreateCampaignInput) (*model.Campaign, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("campaign name cannot be empty")
	}
	if strings.TrimSpace(in.TargetURL) == "" {
		return nil, fmt.Errorf("target_url cannot be empty")
	}
	if in.TotalSessions < 1 {
		return nil, fmt.Errorf("total_sessions must be at least 1")
	}
	if in.SessionDurationMin > 0 && in.SessionDurationMax > 0 && in.SessionDurationMax < in.SessionDurationMin {
		return nil, fmt.Errorf("session_duration_max cannot be below session_duration_min")
	}

	c := &model.Campaign{
		OwnerID:            in.OwnerID,
		Name:               in.Name,
		Status:             model.CampaignStatusDraft,
		TargetURL:          in.TargetURL,
		SearchKeyword:      in.SearchKeyword,
		TotalSessions:      in.TotalSessions,
		SessionsPerTick:    in.SessionsPerTick,
		GeoLocation:        in.GeoLocation,
		SessionDurationMin: in.SessionDurationMin,
		SessionDurationMax: in.SessionDurationMax,
	}
	if c.SessionsPerTick < 1 {
		c.SessionsPerTick = 1
	}

	if in.WindowStart != nil {
		t, err := time.Parse(time.RFC3339, *in.WindowStart)
		if err != nil {
			return nil, fmt.Errorf("invalid window_start: %w", err)
		}
		c.WindowStart = &t
	}
	if in.WindowEnd != nil {
		t, err := time.Parse(time.RFC3339, *in.WindowEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid window_end: %w", err)
		}
		c.WindowEnd = &t
	}

	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	stageStats, err := s.SessionRepo.CountByStage(campaignID)
	if err != nil {
		return nil, err
	}
	outcomeStats, err := s.SessionRepo.CountByOutcome(campaignID)
	if err != nil {
		return nil, err
	}

	return &CampaignDetails{
		Campaign:     campaign,
		StageStats:   stageStats,
		OutcomeStats: outcomeStats,
	}, nil
}

// ActivateCampaign moves a draft campaign to active and runs one
// scheduler pass synchronously so the caller sees the first dispatch
// wave in the response, the same way the periodic tick would run it.
func (s *CampaignService) ActivateCampaign(ctx context.Context, campaignID int) (*ActivateCampaignResult, error) {
	campaign, err := s.CampaignRepo.Activate(campaignID)
	if err != nil {
		return nil, err
	}
	log.Printf("🚀 campaign %d activated: %q targeting %s", campaign.ID, campaign.Name, campaign.TargetURL)

	tick, err := s.Scheduler.Tick(ctx)
	if err != nil {
		// Activation already committed; the periodic tick will pick the
		// campaign up even though this pass failed.
		log.Printf("⚠️ post-activation scheduler pass failed: %v", err)
		return &ActivateCampaignResult{Campaign: campaign}, nil
	}

	return &ActivateCampaignResult{Campaign: campaign, Scheduler: tick}, nil
}

func (s *CampaignService) PauseCampaign(campaignID int) (*model.Campaign, error) {
	if err := s.CampaignRepo.Pause(campaignID); err != nil {
		return nil, err
	}
	log.Printf("⏸️ campaign %d paused", campaignID)
	return s.CampaignRepo.GetByID(campaignID)
}
