package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/unclebandit/trafficpilot-backend/internal/errors"
	"github.com/unclebandit/trafficpilot-backend/internal/model"
	"github.com/unclebandit/trafficpilot-backend/internal/service"
)

// --- Mock Repositories ---

// mockSessionRepo keeps sessions in memory with the same guard
// semantics the SQL layer enforces: stage moves only forward,
// timestamps stamp once, a terminal outcome is written once.
type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.BotSession
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*model.BotSession)}
}

func (m *mockSessionRepo) Create(s *model.BotSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.CreatedAt = time.Now()
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockSessionRepo) GetByID(id string) (*model.BotSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, appErrors.NewSessionNotFound(id)
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) AdvanceStage(id, stage string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return appErrors.NewSessionNotFound(id)
	}
	eligible := false
	for _, before := range model.StagesBefore(stage) {
		if s.Stage == before {
			eligible = true
			break
		}
	}
	if !eligible {
		return nil
	}
	s.Stage = stage
	stamp := at
	switch stage {
	case model.StageSearchInitiated:
		if s.SearchInitiated == nil {
			s.SearchInitiated = &stamp
		}
	case model.StageSearchCompleted:
		if s.SearchCompleted == nil {
			s.SearchCompleted = &stamp
		}
	case model.StageResultResolved:
		if s.ResultResolvedAt == nil {
			s.ResultResolvedAt = &stamp
		}
	case model.StageTargetReached:
		if s.TargetReachedAt == nil {
			s.TargetReachedAt = &stamp
		}
	case model.StagePluginLoaded:
		if s.PluginLoadedAt == nil {
			s.PluginLoadedAt = &stamp
		}
	case model.StagePluginActive:
		if s.PluginActiveAt == nil {
			s.PluginActiveAt = &stamp
		}
	case model.StageCompleted:
		if s.CompletedAt == nil {
			s.CompletedAt = &stamp
		}
	}
	return nil
}

func (m *mockSessionRepo) SetResult(id, resultURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.ResultURL = resultURL
	}
	return nil
}

func (m *mockSessionRepo) SetExtension(id, extensionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.ExtensionID = extensionID
	}
	return nil
}

func (m *mockSessionRepo) UpdateFields(id string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return appErrors.NewSessionNotFound(id)
	}
	for column, value := range fields {
		switch column {
		case "result_url":
			s.ResultURL = value
		case "extension_id":
			s.ExtensionID = value
		case "referrer":
			s.Referrer = value
		case "last_error":
			s.LastError = value
		default:
			return fmt.Errorf("field %q is not updatable", column)
		}
	}
	return nil
}

func (m *mockSessionRepo) Finish(id, outcome, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return appErrors.NewSessionNotFound(id)
	}
	if s.Outcome != "" {
		return nil
	}
	s.Outcome = outcome
	s.LastError = lastError
	now := time.Now()
	if s.CompletedAt == nil {
		s.CompletedAt = &now
	}
	return nil
}

func (m *mockSessionRepo) SweepStuck(olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	swept := 0
	for _, s := range m.sessions {
		if s.Outcome == "" && s.CreatedAt.Before(olderThan) {
			s.Outcome = model.OutcomeTimedOut
			swept++
		}
	}
	return swept, nil
}

func (m *mockSessionRepo) CountByStage(campaignID int) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, s := range m.sessions {
		if s.CampaignID == campaignID {
			counts[s.Stage]++
		}
	}
	return counts, nil
}

func (m *mockSessionRepo) CountByOutcome(campaignID int) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, s := range m.sessions {
		if s.CampaignID == campaignID {
			key := s.Outcome
			if key == "" {
				key = "in_flight"
			}
			counts[key]++
		}
	}
	return counts, nil
}

type mockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
}

func newMockCampaignRepo(campaigns ...*model.Campaign) *mockCampaignRepo {
	m := &mockCampaignRepo{campaigns: make(map[int]*model.Campaign)}
	for _, c := range campaigns {
		cp := *c
		m.campaigns[c.ID] = &cp
	}
	return m
}

func (m *mockCampaignRepo) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Campaign
	for _, c := range m.campaigns {
		if status == "" || c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockCampaignRepo) ListActive() ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Campaign
	for _, c := range m.campaigns {
		if c.Status == model.CampaignStatusActive {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockCampaignRepo) Create(c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = len(m.campaigns) + 1
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *mockCampaignRepo) UpdateStatus(campaignID int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[campaignID]; ok {
		c.Status = status
	}
	return nil
}

func (m *mockCampaignRepo) Activate(campaignID int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}
	if c.Status != model.CampaignStatusDraft {
		return nil, &appErrors.ErrCampaignNotActivatable{CampaignID: campaignID, Status: c.Status}
	}
	c.Status = model.CampaignStatusActive
	now := time.Now()
	c.StartedAt = &now
	cp := *c
	return &cp, nil
}

func (m *mockCampaignRepo) Pause(campaignID int) error {
	return m.UpdateStatus(campaignID, model.CampaignStatusPaused)
}

func (m *mockCampaignRepo) MarkCompleted(campaignID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[campaignID]; ok {
		c.Status = model.CampaignStatusCompleted
		now := time.Now()
		c.CompletedAt = &now
	}
	return nil
}

func (m *mockCampaignRepo) ReserveSession(campaignID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return false, appErrors.NewCampaignNotFound(campaignID)
	}
	if c.DeliveredSessions >= c.TotalSessions {
		return false, nil
	}
	c.DeliveredSessions++
	return true, nil
}

func (m *mockCampaignRepo) RecordScheduleError(campaignID int, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[campaignID]; ok {
		c.LastScheduleError = msg
	}
	return nil
}

// --- Mock Resolver / Dispatcher ---

type mockResolver struct {
	handle model.ProxyHandle
	err    error
	calls  int
}

func (m *mockResolver) Resolve(ctx context.Context, ownerID int) (model.ProxyHandle, error) {
	m.calls++
	if m.err != nil {
		return model.ProxyHandle{}, m.err
	}
	return m.handle, nil
}

type mockDispatcher struct {
	mu       sync.Mutex
	sessions []*model.BotSession
	err      error
}

func (m *mockDispatcher) Dispatch(ctx context.Context, session *model.BotSession, campaign *model.Campaign, handle model.ProxyHandle) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, session)
	return nil
}

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

var _ service.Dispatcher = (*mockDispatcher)(nil)
var _ service.ProxyResolverInterface = (*mockResolver)(nil)
