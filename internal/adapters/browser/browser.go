// Package browser opens URLs in the user's default browser.
package browser

import (
	"io"
	"net/url"

	"github.com/pkg/browser"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/zerr"
)

// Opener implements ports.BrowserOpener on top of github.com/pkg/browser.
type Opener struct {
	logger ports.Logger
	open   func(string) error
}

// NewOpener returns an Opener that launches the platform browser.
// Output of the launcher command is discarded so it does not interleave with the app.
func NewOpener(logger ports.Logger) *Opener {
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return &Opener{logger: logger, open: browser.OpenURL}
}

// Open validates rawURL and opens it.
func (o *Opener) Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return zerr.With(zerr.New("refusing to open invalid url"), "url", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return zerr.With(zerr.New("refusing to open non-web url"), "url", rawURL)
	}

	o.logger.Info("Opening " + u.String())
	if err := o.open(u.String()); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open browser"), "url", rawURL)
	}
	return nil
}
