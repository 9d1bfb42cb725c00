// internal/browser/http_driver.go
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/unclebandit/trafficpilot-backend/internal/model"
)

// HTTPDriver issues automation commands to a remote browser-automation
// server over JSON HTTP. The server runs the actual headless browser;
// the proxy handle rides along in each command so the remote side can
// route traffic through the right exit.
type HTTPDriver struct {
	BaseURL string
	Handle  model.ProxyHandle
	Client  *http.Client
}

// HTTPFactory produces HTTPDrivers against one automation server.
type HTTPFactory struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPFactory(baseURL string) *HTTPFactory {
	return &HTTPFactory{
		BaseURL: baseURL,
		Client:  &http.Client{},
	}
}

func (f *HTTPFactory) Driver(handle model.ProxyHandle) Driver {
	return &HTTPDriver{BaseURL: f.BaseURL, Handle: handle, Client: f.Client}
}

type commandRequest struct {
	Keyword       string `json:"keyword,omitempty"`
	URL           string `json:"url,omitempty"`
	ProxyEndpoint string `json:"proxy_endpoint"`
	ProxyUsername string `json:"proxy_username"`
	ProxyPassword string `json:"proxy_password"`
}

type commandResponse struct {
	Success   bool     `json:"success"`
	Error     string   `json:"error,omitempty"`
	Links     []string `json:"links,omitempty"`
	LandedURL string   `json:"landed_url,omitempty"`
}

func (d *HTTPDriver) Search(ctx context.Context, keyword string) ([]string, error) {
	resp, err := d.post(ctx, "/api/search", commandRequest{Keyword: keyword})
	if err != nil {
		return nil, err
	}
	return resp.Links, nil
}

func (d *HTTPDriver) Click(ctx context.Context, url string) (string, error) {
	resp, err := d.post(ctx, "/api/click", commandRequest{URL: url})
	if err != nil {
		return "", err
	}
	return resp.LandedURL, nil
}

func (d *HTTPDriver) Navigate(ctx context.Context, url string) (string, error) {
	resp, err := d.post(ctx, "/api/navigate", commandRequest{URL: url})
	if err != nil {
		return "", err
	}
	return resp.LandedURL, nil
}

func (d *HTTPDriver) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return stepError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("automation server unhealthy: %s", resp.Status)
	}
	return nil
}

func (d *HTTPDriver) post(ctx context.Context, path string, cmd commandRequest) (*commandResponse, error) {
	cmd.ProxyEndpoint = d.Handle.Endpoint
	cmd.ProxyUsername = d.Handle.Username
	cmd.ProxyPassword = d.Handle.Password

	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, stepError(ctx, err)
	}
	defer resp.Body.Close()

	// Non-2xx replies may come from an intermediary and carry an HTML
	// body rather than our JSON envelope.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("automation command %s failed: %s", path, resp.Status)
	}

	var out commandResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("automation command %s failed after %s: %s", path, time.Since(start).Round(time.Millisecond), msg)
	}
	return &out, nil
}

var _ Driver = (*HTTPDriver)(nil)
var _ Factory = (*HTTPFactory)(nil)
