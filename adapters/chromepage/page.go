package chromepage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/playback"
	"github.com/flowscribe/flowscribe/recorder"
)

const (
	recordBinding   = "__flowscribeRecord"
	keyBinding      = "__flowscribeKey"
	mutationBinding = "__flowscribeMutation"
)

// Page is one attached tab. It implements playback.Page and forwards capture
// and keyboard events from the injected scripts to whatever is bound.
type Page struct {
	tabID  string
	ctx    context.Context
	cancel context.CancelFunc
	logger flowscribe.Logger

	mu          sync.Mutex
	rec         *recorder.Recorder
	keyHandler  func(playback.Key)
	mutationCB  func()
	mutationGen int
}

func newPage(tabID string, ctx context.Context, cancel context.CancelFunc, l flowscribe.Logger) *Page {
	return &Page{
		tabID:  tabID,
		ctx:    ctx,
		cancel: cancel,
		logger: l,
	}
}

// TabID returns the DevTools target id this page is bound to.
func (p *Page) TabID() string {
	return p.tabID
}

// install registers the bindings, arranges the capture script for every new
// document, injects it into the current one, and starts event dispatch.
func (p *Page) install() error {
	chromedp.ListenTarget(p.ctx, p.dispatch)

	return chromedp.Run(p.ctx,
		runtime.AddBinding(recordBinding),
		runtime.AddBinding(keyBinding),
		runtime.AddBinding(mutationBinding),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(captureScript).Do(ctx)
			return err
		}),
		chromedp.Evaluate(captureScript, nil),
	)
}

// BindRecorder routes captured click and navigation events into rec.
func (p *Page) BindRecorder(rec *recorder.Recorder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec = rec
}

// BindKeys routes playback keyboard shortcuts from the page to fn.
func (p *Page) BindKeys(fn func(playback.Key)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keyHandler = fn
}

// dispatch runs on the target's event goroutine. Handlers spawn goroutines:
// anything that issues further protocol calls must not block dispatch.
func (p *Page) dispatch(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		switch e.Name {
		case recordBinding:
			p.onRecordEvent(e.Payload)
		case keyBinding:
			p.onKeyEvent(e.Payload)
		case mutationBinding:
			p.onMutationEvent()
		}
	case *cdppage.EventFrameNavigated:
		if e.Frame.ParentID != "" {
			return // subframe
		}
		p.onNavigated(e.Frame.URL)
	}
}

func (p *Page) onRecordEvent(payload string) {
	p.mu.Lock()
	rec := p.rec
	p.mu.Unlock()
	if rec == nil {
		return
	}

	var click recorder.ClickEvent
	err := json.Unmarshal([]byte(payload), &click)
	if err != nil {
		p.logger.Error(context.Background(), errors.Wrap(err, "malformed capture payload", j.KV("tab_id", p.tabID)))
		return
	}

	go func() {
		err := rec.HandleClick(context.Background(), click)
		if err != nil {
			p.logger.Error(context.Background(), err)
		}
	}()
}

func (p *Page) onKeyEvent(payload string) {
	p.mu.Lock()
	fn := p.keyHandler
	p.mu.Unlock()
	if fn == nil {
		return
	}

	var k playback.Key
	switch payload {
	case "next":
		k = playback.KeyNext
	case "previous":
		k = playback.KeyPrevious
	case "stop":
		k = playback.KeyStop
	default:
		return
	}
	go fn(k)
}

func (p *Page) onMutationEvent() {
	p.mu.Lock()
	cb := p.mutationCB
	p.mu.Unlock()
	if cb != nil {
		go cb()
	}
}

func (p *Page) onNavigated(toURL string) {
	p.mu.Lock()
	rec := p.rec
	p.mu.Unlock()
	if rec == nil {
		return
	}

	go func() {
		ctx := context.Background()
		if !rec.Attached() {
			_, err := rec.AutoResume(ctx, p.tabID)
			if err != nil {
				p.logger.Error(ctx, err)
			}
		}
		err := rec.HandleNavigation(ctx, toURL)
		if err != nil {
			p.logger.Error(ctx, err)
		}
	}()
}

func (p *Page) close() {
	p.cancel()
}

// --- playback.Page ---

var _ playback.Page = (*Page)(nil)

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *Page) Find(ctx context.Context, selector string) (*playback.Element, error) {
	js := fmt.Sprintf(findScript, jsString(selector))

	var res *struct {
		Rect      playback.Rect `json:"rect"`
		Text      string        `json:"text"`
		AriaLabel string        `json:"ariaLabel"`
		FormText  string        `json:"formText"`
	}
	err := p.run(ctx, chromedp.Evaluate(js, &res))
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.Wrap(flowscribe.ErrElementNotFound, "", j.KV("selector", selector))
	}
	return &playback.Element{
		Rect:      res.Rect,
		Text:      res.Text,
		AriaLabel: res.AriaLabel,
		FormText:  res.FormText,
	}, nil
}

func (p *Page) Viewport(ctx context.Context) (float64, float64, error) {
	var size struct {
		W float64 `json:"w"`
		H float64 `json:"h"`
	}
	err := p.run(ctx, chromedp.Evaluate(`({w: window.innerWidth, h: window.innerHeight})`, &size))
	if err != nil {
		return 0, 0, err
	}
	return size.W, size.H, nil
}

func (p *Page) ShowOverlay(ctx context.Context, o playback.Overlay) error {
	js := fmt.Sprintf(showOverlayScript,
		jsString(o.Selector), jsString(o.Explanation), jsString(o.Placement.String()))
	return p.run(ctx, chromedp.Evaluate(js, nil))
}

func (p *Page) ClearOverlay(ctx context.Context) error {
	return p.run(ctx, chromedp.Evaluate(clearOverlayScript, nil))
}

func (p *Page) ScrollIntoView(ctx context.Context, selector string) error {
	js := fmt.Sprintf(scrollScript, jsString(selector))
	return p.run(ctx, chromedp.Evaluate(js, nil))
}

func (p *Page) Click(ctx context.Context, selector string) error {
	var clicked bool
	js := fmt.Sprintf(clickScript, jsString(selector))
	err := p.run(ctx, chromedp.Evaluate(js, &clicked))
	if err != nil {
		return err
	}
	if !clicked {
		return errors.Wrap(flowscribe.ErrElementNotFound, "", j.KV("selector", selector))
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *Page) WatchMutations(ctx context.Context, onChange func()) (func(), error) {
	p.mu.Lock()
	p.mutationGen++
	gen := p.mutationGen
	p.mutationCB = onChange
	p.mu.Unlock()

	err := p.run(ctx, chromedp.Evaluate(watchMutationsScript, nil))
	if err != nil {
		p.mu.Lock()
		if p.mutationGen == gen {
			p.mutationCB = nil
		}
		p.mu.Unlock()
		return nil, err
	}

	cancel := func() {
		p.mu.Lock()
		if p.mutationGen == gen {
			p.mutationCB = nil
		}
		p.mu.Unlock()

		cancelCtx, cancelRun := context.WithTimeout(p.ctx, 3*time.Second)
		defer cancelRun()
		err := chromedp.Run(cancelCtx, chromedp.Evaluate(unwatchMutationsScript, nil))
		if err != nil {
			p.logger.Debug(context.Background(), "mutation unwatch failed", flowscribe.MKV{
				"tab_id": p.tabID, "error": err.Error(),
			})
		}
	}
	return cancel, nil
}

// run executes actions against the tab honouring the caller's deadline
// alongside the tab lifetime.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := mergeContexts(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// mergeContexts keeps chromedp's target association from tabCtx while
// cancelling when either context ends.
func mergeContexts(tabCtx, callCtx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(callCtx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// jsString encodes s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// Strings always marshal; keep a safe fallback anyway.
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return string(b)
}
