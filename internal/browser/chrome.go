package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const resetTimeout = 10 * time.Second

// Page is one browser tab. Every method is bounded by ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until selector matches a visible node or timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// HTML returns the outer HTML of the first node matching selector.
	HTML(ctx context.Context, selector string) (string, error)
	// Count returns how many nodes currently match selector.
	Count(ctx context.Context, selector string) (int, error)
	// Click clicks the first node matching selector and reports whether one existed.
	Click(ctx context.Context, selector string) (bool, error)
	// Reset navigates to a blank document and clears cookies.
	Reset(ctx context.Context) error
	Close() error
}

// Chrome owns the browser process. Pages are tabs of that process.
type Chrome struct {
	opts          Options
	log           *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closeOnce     sync.Once
}

// NewChrome launches Chrome and verifies it started.
func NewChrome(opts Options, log *zap.Logger) (*Chrome, error) {
	if log == nil {
		log = zap.NewNop()
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), BuildAllocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	log.Named("browser").Info("chrome started", zap.Bool("headless", opts.Headless))
	return &Chrome{
		opts:          opts,
		log:           log.Named("browser"),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewPage opens a tab. It matches the pool.Factory signature.
func (c *Chrome) NewPage(ctx context.Context) (Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	p := &ChromePage{ctx: tabCtx, cancel: tabCancel}

	actions := []chromedp.Action{network.Enable()}
	if c.opts.BlockResources {
		actions = append(actions, network.SetBlockedURLs(blockedPatterns))
	}
	if err := ctx.Err(); err != nil {
		tabCancel()
		return nil, err
	}
	// The first Run allocates the tab and must use the tab context itself;
	// a derived timeout would tear the target down when it fires.
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return p, nil
}

// Close shuts the browser down, closing all tabs.
func (c *Chrome) Close() {
	c.closeOnce.Do(func() {
		c.browserCancel()
		c.allocCancel()
		c.log.Info("chrome stopped")
	})
}

// ChromePage is a Page backed by a chromedp tab context.
type ChromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions in the tab, bounded by the caller's ctx. Cancelling a
// context derived from the tab does not close the tab.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *ChromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *ChromePage) HTML(ctx context.Context, selector string) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *ChromePage) Count(ctx context.Context, selector string) (int, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return 0, err
	}
	var n int
	script := fmt.Sprintf(`document.querySelectorAll(%s).length`, sel)
	if err := p.run(ctx, chromedp.Evaluate(script, &n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *ChromePage) Click(ctx context.Context, selector string) (bool, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return false, err
	}
	var clicked bool
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return false; }
		el.scrollIntoView({block: "center"});
		el.click();
		return true;
	})()`, sel)
	if err := p.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

func (p *ChromePage) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, resetTimeout)
	defer cancel()
	return p.run(ctx,
		chromedp.Navigate("about:blank"),
		network.ClearBrowserCookies(),
	)
}

// Close closes the tab.
func (p *ChromePage) Close() error {
	p.cancel()
	return nil
}
