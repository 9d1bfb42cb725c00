package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unclebandit/trafficpilot-backend/internal/model"
)

func TestRemainingSessionsClampsAtZero(t *testing.T) {
	c := model.Campaign{TotalSessions: 10, DeliveredSessions: 4}
	require.Equal(t, 6, c.RemainingSessions())

	c.DeliveredSessions = 12
	require.Equal(t, 0, c.RemainingSessions())
}

func TestInWindow(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	open := model.Campaign{}
	require.True(t, open.InWindow(now))

	started := model.Campaign{WindowStart: &past}
	require.True(t, started.InWindow(now))

	notYet := model.Campaign{WindowStart: &future}
	require.False(t, notYet.InWindow(now))

	ended := model.Campaign{WindowEnd: &past}
	require.False(t, ended.InWindow(now))

	inside := model.Campaign{WindowStart: &past, WindowEnd: &future}
	require.True(t, inside.InWindow(now))
}

func TestProxyHandleDerivesVendorUsername(t *testing.T) {
	cfg := model.ProxyConfig{
		CustomerID: "c_9f31xk",
		ZoneName:   "residential_us",
		Password:   "secret",
		Host:       "brd.superproxy.io",
		Port:       9222,
	}

	h := cfg.Handle()
	require.Equal(t, "brd-customer-c_9f31xk-zone-residential_us", h.Username)
	require.Equal(t, "brd.superproxy.io:9222", h.Endpoint)
}

func TestProxyHandleKeepsExplicitUsername(t *testing.T) {
	cfg := model.ProxyConfig{
		Username: "custom-user",
		Password: "secret",
		Host:     "proxy.local",
		Port:     8080,
	}
	require.Equal(t, "custom-user", cfg.Handle().Username)
}
