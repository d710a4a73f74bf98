// Package chromepage drives live pages over the Chrome DevTools Protocol. It
// is the page agent host: it implements the playback Page surface, feeds the
// recorder with capture events from an injected script, and serves the
// privileged screenshot call. Chrome must be running with
// --remote-debugging-port for the remote allocator to connect.
package chromepage

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/flowscribe/flowscribe"
)

const (
	readinessAttempts  = 3
	readinessBaseDelay = 200 * time.Millisecond
)

// TabInfo describes one attachable page target.
type TabInfo struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Browser manages the connection to a running Chrome and the pages attached
// through it. It also serves as the privileged screenshot capturer keyed by
// tab id.
type Browser struct {
	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabs        map[string]*Page

	logger flowscribe.Logger
}

type options struct {
	logger flowscribe.Logger
}

type Option func(*options)

func WithLogger(l flowscribe.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Connect dials the Chrome debug endpoint, e.g. http://localhost:9222.
func Connect(ctx context.Context, debugURL string, opts ...Option) (*Browser, error) {
	opt := options{
		logger: flowscribe.NoopLogger{},
	}
	for _, o := range opts {
		o(&opt)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, debugURL)

	// Probe the connection so a bad endpoint fails here rather than on first use.
	probeCtx, probeCancel := chromedp.NewContext(allocCtx)
	defer probeCancel()
	_, err := chromedp.Targets(probeCtx)
	if err != nil {
		allocCancel()
		return nil, errors.Wrap(err, "cannot connect to chrome debug endpoint", j.KV("debug_url", debugURL))
	}

	return &Browser{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabs:        make(map[string]*Page),
		logger:      opt.logger,
	}, nil
}

// Tabs lists open page targets.
func (b *Browser) Tabs(ctx context.Context) ([]TabInfo, error) {
	listCtx, cancel := chromedp.NewContext(b.allocCtx)
	defer cancel()

	targets, err := chromedp.Targets(listCtx)
	if err != nil {
		return nil, err
	}

	var infos []TabInfo
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		infos = append(infos, TabInfo{ID: string(t.TargetID), URL: t.URL, Title: t.Title})
	}
	return infos, nil
}

// AttachTab binds a Page to the target and verifies script readiness with
// bounded backoff before returning. Pages are cached per target id.
func (b *Browser) AttachTab(ctx context.Context, targetID string) (*Page, error) {
	b.mu.Lock()
	if p, ok := b.tabs[targetID]; ok {
		b.mu.Unlock()
		return p, nil
	}
	b.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(b.allocCtx,
		chromedp.WithTargetID(target.ID(targetID)),
	)

	err := awaitReady(tabCtx)
	if err != nil {
		tabCancel()
		return nil, err
	}

	p := newPage(targetID, tabCtx, tabCancel, b.logger)
	err = p.install()
	if err != nil {
		tabCancel()
		return nil, err
	}

	b.mu.Lock()
	b.tabs[targetID] = p
	b.mu.Unlock()
	return p, nil
}

// DetachTab tears down the page attachment for the target, if any.
func (b *Browser) DetachTab(targetID string) {
	b.mu.Lock()
	p, ok := b.tabs[targetID]
	delete(b.tabs, targetID)
	b.mu.Unlock()

	if ok {
		p.close()
	}
}

// CaptureViewport implements flowscribe.ScreenshotCapturer. Only this
// privileged process can read tab pixels; page scripts round trip through it.
func (b *Browser) CaptureViewport(ctx context.Context, tabID string) ([]byte, error) {
	b.mu.Lock()
	p, ok := b.tabs[tabID]
	b.mu.Unlock()
	if !ok {
		return nil, errors.Wrap(flowscribe.ErrScreenshotUnavailable, "tab not attached", j.KV("tab_id", tabID))
	}

	captureCtx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	var buf []byte
	err := chromedp.Run(captureCtx, chromedp.CaptureScreenshot(&buf))
	if err != nil {
		return nil, errors.Wrap(flowscribe.ErrScreenshotUnavailable, err.Error())
	}
	return buf, nil
}

var _ flowscribe.ScreenshotCapturer = (*Browser)(nil)

// Close detaches every page and drops the Chrome connection.
func (b *Browser) Close() {
	b.mu.Lock()
	tabs := b.tabs
	b.tabs = make(map[string]*Page)
	b.mu.Unlock()

	for _, p := range tabs {
		p.close()
	}
	b.allocCancel()
}

// awaitReady verifies the page evaluates script, retrying with exponential
// backoff. Restricted origins and still-loading documents fail here with a
// user actionable error instead of crashing later calls.
func awaitReady(ctx context.Context) error {
	delay := readinessBaseDelay
	var lastErr error
	for attempt := 0; attempt < readinessAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		var ready bool
		err := chromedp.Run(probeCtx, chromedp.Evaluate(`document.readyState !== 'loading'`, &ready))
		cancel()
		if err == nil && ready {
			return nil
		}
		lastErr = err
	}

	err := errors.Wrap(flowscribe.ErrPageNotReady, "")
	if lastErr != nil {
		err = errors.Wrap(flowscribe.ErrPageNotReady, lastErr.Error())
	}
	return err
}
