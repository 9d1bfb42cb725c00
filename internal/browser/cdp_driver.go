// internal/browser/cdp_driver.go
package browser

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/unclebandit/trafficpilot-backend/internal/model"
)

// CDPDriver drives a remote scraping-browser endpoint directly over the
// DevTools protocol. Providers expose these as authenticated websocket
// endpoints; the handle's credentials go into the control URL.
type CDPDriver struct {
	Handle model.ProxyHandle
	// SearchURL is the search results page template; %s receives the
	// url-encoded keyword.
	SearchURL string
}

type CDPFactory struct{}

func (CDPFactory) Driver(handle model.ProxyHandle) Driver {
	return &CDPDriver{Handle: handle}
}

func (d *CDPDriver) controlURL() string {
	return fmt.Sprintf("wss://%s:%s@%s",
		url.QueryEscape(d.Handle.Username), url.QueryEscape(d.Handle.Password), d.Handle.Endpoint)
}

func (d *CDPDriver) connect(ctx context.Context) (*rod.Browser, error) {
	b := rod.New().ControlURL(d.controlURL()).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, stepError(ctx, err)
	}
	return b, nil
}

func (d *CDPDriver) searchURL(keyword string) string {
	tmpl := d.SearchURL
	if tmpl == "" {
		tmpl = "https://www.google.com/search?q=%s&hl=en&num=10"
	}
	return fmt.Sprintf(tmpl, url.QueryEscape(keyword))
}

func (d *CDPDriver) Search(ctx context.Context, keyword string) ([]string, error) {
	b, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	page, err := b.Page(proto.TargetCreateTarget{URL: d.searchURL(keyword)})
	if err != nil {
		return nil, stepError(ctx, err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return nil, stepError(ctx, err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, stepError(ctx, err)
	}
	return ExtractOrganicLinks(html), nil
}

func (d *CDPDriver) Click(ctx context.Context, target string) (string, error) {
	return d.open(ctx, target)
}

func (d *CDPDriver) Navigate(ctx context.Context, target string) (string, error) {
	return d.open(ctx, target)
}

// open loads a URL in a fresh page and reports where it landed after
// redirects settle.
func (d *CDPDriver) open(ctx context.Context, target string) (string, error) {
	b, err := d.connect(ctx)
	if err != nil {
		return "", err
	}
	defer b.Close()

	page, err := b.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return "", stepError(ctx, err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return "", stepError(ctx, err)
	}

	info, err := page.Info()
	if err != nil {
		return "", stepError(ctx, err)
	}
	return info.URL, nil
}

func (d *CDPDriver) Health(ctx context.Context) error {
	b, err := d.connect(ctx)
	if err != nil {
		return err
	}
	return b.Close()
}

var _ Driver = (*CDPDriver)(nil)
var _ Factory = CDPFactory{}
