package tab

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/chromedp/chromedp"
)

// ChromeDriver implements Driver on a headless Chrome instance. Every tab
// gets its own chromedp context off a shared exec allocator; cancelling the
// tab context is the close primitive, which makes Close idempotent by
// construction.
type ChromeDriver struct {
	allocCtx context.Context
	logger   *slog.Logger

	mu     sync.Mutex
	tabs   map[string]*chromeTab
	nextID atomic.Int64
}

type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
	loaded chan error
}

// NewChromeDriver starts a headless Chrome allocator and returns a driver
// on it. The returned cancel func tears down the browser.
func NewChromeDriver(ctx context.Context, logger *slog.Logger) (*ChromeDriver, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)

	return &ChromeDriver{
		allocCtx: allocCtx,
		logger:   logger,
		tabs:     make(map[string]*chromeTab),
	}, cancel
}

// Create opens a new tab and starts navigating it to url. Navigation runs
// asynchronously so that opening and awaiting the load stay separate
// suspension points.
func (d *ChromeDriver) Create(_ context.Context, url string) (string, error) {
	tabCtx, cancel := chromedp.NewContext(d.allocCtx)

	// Run with no actions forces target creation, so refusal by the
	// browser surfaces here rather than mid-navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return "", &CreationError{URL: url, Err: err}
	}

	t := &chromeTab{ctx: tabCtx, cancel: cancel, loaded: make(chan error, 1)}
	id := strconv.FormatInt(d.nextID.Add(1), 10)

	d.mu.Lock()
	d.tabs[id] = t
	d.mu.Unlock()

	go func() {
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(url),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
		if err != nil {
			d.logger.Warn("Tab navigation ended with error", "tab_id", id, "error", err)
		}
		t.loaded <- err
	}()

	return id, nil
}

// AwaitLoad blocks until navigation completes, the tab context dies, or
// ctx is done. The load outcome is replayed to subsequent waiters.
func (d *ChromeDriver) AwaitLoad(ctx context.Context, id string) error {
	t, ok := d.tab(id)
	if !ok {
		return ErrClosed
	}

	select {
	case err := <-t.loaded:
		t.loaded <- err
		if err != nil {
			if t.ctx.Err() != nil {
				return ErrClosed
			}
			return fmt.Errorf("navigate: %w", err)
		}
		return nil
	case <-t.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info returns the tab's current URL and title. This works on browser
// error pages too, which is what makes error-page detection possible.
func (d *ChromeDriver) Info(_ context.Context, id string) (Info, error) {
	t, ok := d.tab(id)
	if !ok {
		return Info{}, ErrClosed
	}

	var url, title string
	if err := chromedp.Run(t.ctx,
		chromedp.Location(&url),
		chromedp.Title(&title),
	); err != nil {
		return Info{}, fmt.Errorf("read tab state: %w", err)
	}

	return Info{URL: url, Title: title}, nil
}

// HTML returns the rendered document of the tab.
func (d *ChromeDriver) HTML(_ context.Context, id string) (string, error) {
	t, ok := d.tab(id)
	if !ok {
		return "", ErrClosed
	}

	var html string
	if err := chromedp.Run(t.ctx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}

	return html, nil
}

// Close destroys the tab. Unknown ids are ignored.
func (d *ChromeDriver) Close(_ context.Context, id string) error {
	d.mu.Lock()
	t, ok := d.tabs[id]
	delete(d.tabs, id)
	d.mu.Unlock()

	if ok {
		t.cancel()
	}
	return nil
}

func (d *ChromeDriver) tab(id string) (*chromeTab, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tabs[id]
	return t, ok
}
