// internal/service/resolver.go
package service

import (
	"context"
	"log"
	"time"

	"github.com/unclebandit/trafficpilot-backend/internal/browser"
	appErrors "github.com/unclebandit/trafficpilot-backend/internal/errors"
	"github.com/unclebandit/trafficpilot-backend/internal/model"
	"github.com/unclebandit/trafficpilot-backend/internal/repository"
)

// ProxyResolverInterface is what the scheduler and worker depend on.
type ProxyResolverInterface interface {
	Resolve(ctx context.Context, ownerID int) (model.ProxyHandle, error)
}

// ProxyResolver turns an owner id into a health-checked automation
// endpoint. A handle it returns has passed a probe within ProbeTimeout.
type ProxyResolver struct {
	Proxies      repository.ProxyRepositoryInterface
	Drivers      browser.Factory
	ProbeTimeout time.Duration
}

// Resolve tries the owner's enabled configs in priority order and
// returns the first that passes a bounded health probe. When none do,
// callers must not spawn a session.
func (r *ProxyResolver) Resolve(ctx context.Context, ownerID int) (model.ProxyHandle, error) {
	configs, err := r.Proxies.ListEnabledByOwner(ownerID)
	if err != nil {
		return model.ProxyHandle{}, err
	}

	for _, cfg := range configs {
		if !cfg.Valid() {
			log.Printf("⚠️ skipping malformed proxy config %d for owner %d", cfg.ID, ownerID)
			continue
		}

		handle := cfg.Handle()
		probeCtx, cancel := context.WithTimeout(ctx, r.ProbeTimeout)
		err := r.Drivers.Driver(handle).Health(probeCtx)
		cancel()
		if err != nil {
			log.Printf("⚠️ proxy config %d failed health probe: %v", cfg.ID, err)
			continue
		}

		return handle, nil
	}

	return model.ProxyHandle{}, appErrors.ErrNoProxyAvailable
}

var _ ProxyResolverInterface = (*ProxyResolver)(nil)
