// internal/browser/driver.go
package browser

import (
	"context"
	"errors"

	appErrors "github.com/unclebandit/trafficpilot-backend/internal/errors"
	"github.com/unclebandit/trafficpilot-backend/internal/model"
)

// Driver is the command/result interface to the remote browser
// automation endpoint. Every command honours the caller's context
// deadline; exceeding it surfaces appErrors.ErrStepTimeout, which is
// distinct from a remote-side failure.
type Driver interface {
	// Search runs a search-engine lookup for the keyword and returns
	// the ordered candidate result links.
	Search(ctx context.Context, keyword string) ([]string, error)
	// Click follows a result link and returns the URL the page landed on.
	Click(ctx context.Context, url string) (string, error)
	// Navigate goes directly to a URL and returns the landed URL.
	Navigate(ctx context.Context, url string) (string, error)
	// Health probes the endpoint.
	Health(ctx context.Context) error
}

// Factory binds a resolved proxy handle to a concrete driver. The
// resolver uses it for health probes, the session runner for commands.
type Factory interface {
	Driver(handle model.ProxyHandle) Driver
}

// stepError converts context expiry into the timeout sentinel so the
// state machine can treat timeouts differently from remote errors.
func stepError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return appErrors.ErrStepTimeout
	}
	return err
}
