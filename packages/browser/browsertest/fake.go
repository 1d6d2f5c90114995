// Package browsertest provides a scripted, in-memory browser for tests.
//
// Navigating to a URL or clicking a selector fires the outgoing requests listed
// for it in Routes through the page's request handler, before the call
// returns. Requests listed in DelayedRoutes are fired from a goroutine after
// RequestDelay, which exercises explicit request waits.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/beaconspec/packages/browser"
)

// Decision records what the handler answered for one simulated request.
type Decision struct {
	URL   string
	Abort bool
}

type Launcher struct {
	// Routes maps a navigated URL or clicked selector to the requests it fires.
	Routes        map[string][]string
	DelayedRoutes map[string][]string
	RequestDelay  time.Duration
	// Elements lists the selectors present on every page. Nil means all exist.
	Elements []string
	// DataLayer is the JSON returned for the data layer script; empty means null.
	DataLayer string
	// NavigationErrors fails navigation to the listed URLs.
	NavigationErrors map[string]error
	LaunchErr        error

	mu       sync.Mutex
	browsers []*Browser
	launches []browser.LaunchOptions
}

var _ browser.Launcher = (*Launcher)(nil)

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, opts)
	if l.LaunchErr != nil {
		return nil, fmt.Errorf("%w: %w", browser.ErrLaunch, l.LaunchErr)
	}
	b := &Browser{launcher: l}
	l.browsers = append(l.browsers, b)
	return b, nil
}

// Launches returns the options of every Launch call.
func (l *Launcher) Launches() []browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.LaunchOptions(nil), l.launches...)
}

func (l *Launcher) Browsers() []*Browser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Browser(nil), l.browsers...)
}

type Browser struct {
	launcher *Launcher

	mu     sync.Mutex
	pages  []*Page
	closed int
}

func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &Page{launcher: b.launcher}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	pages := append([]*Page(nil), b.pages...)
	b.closed++
	b.mu.Unlock()

	for _, p := range pages {
		p.wait()
	}
	return nil
}

// Closed reports how many times Close was called.
func (b *Browser) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

type Page struct {
	launcher *Launcher
	wg       sync.WaitGroup

	mu          sync.Mutex
	handler     browser.RequestHandler
	navigations []string
	clicks      []string
	typed       map[string]string
	cleared     []string
	evaluated   []string
	decisions   []Decision
	closed      int
}

func (p *Page) Intercept(ctx context.Context, h browser.RequestHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", browser.ErrNavigation, url, err)
	}
	if err, ok := p.launcher.NavigationErrors[url]; ok {
		return fmt.Errorf("%w: %s: %w", browser.ErrNavigation, url, err)
	}
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	p.mu.Unlock()

	p.fire(url)
	return nil
}

func (p *Page) WaitForSelector(ctx context.Context, selector string) error {
	if !p.exists(selector) {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	return ctx.Err()
}

func (p *Page) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", browser.ErrEvaluation, err)
	}
	p.mu.Lock()
	p.evaluated = append(p.evaluated, expression)
	p.mu.Unlock()

	if expression == browser.DataLayerScript(browser.DefaultDataLayer) {
		if p.launcher.DataLayer == "" {
			return json.RawMessage("null"), nil
		}
		return json.RawMessage(p.launcher.DataLayer), nil
	}

	sel, ok := scriptSelector(expression)
	if !ok || !p.exists(sel) {
		return json.RawMessage("false"), nil
	}
	switch expression {
	case browser.ClickScript(sel):
		p.mu.Lock()
		p.clicks = append(p.clicks, sel)
		p.mu.Unlock()
		p.fire(sel)
		return json.RawMessage("true"), nil
	case browser.ClearScript(sel):
		p.mu.Lock()
		p.cleared = append(p.cleared, sel)
		p.mu.Unlock()
		return json.RawMessage("true"), nil
	}
	return json.RawMessage("false"), nil
}

// scriptSelector pulls the selector out of an element script.
func scriptSelector(expression string) (string, bool) {
	const marker = "document.querySelector("
	i := strings.Index(expression, marker)
	if i < 0 {
		return "", false
	}
	var sel string
	dec := json.NewDecoder(strings.NewReader(expression[i+len(marker):]))
	if err := dec.Decode(&sel); err != nil {
		return "", false
	}
	return sel, true
}

func (p *Page) Type(ctx context.Context, selector, text string, delay time.Duration) error {
	if !p.exists(selector) {
		return fmt.Errorf("%w: %s", browser.ErrElementNotFound, selector)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.typed == nil {
		p.typed = make(map[string]string)
	}
	p.typed[selector] += text
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	p.wait()
	return nil
}

// Fire simulates an outgoing request that no step triggered.
func (p *Page) Fire(url string) Decision {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()

	d := Decision{URL: url}
	if h != nil {
		d.Abort = h(url)
	}
	p.mu.Lock()
	p.decisions = append(p.decisions, d)
	p.mu.Unlock()
	return d
}

func (p *Page) fire(key string) {
	for _, u := range p.launcher.Routes[key] {
		p.Fire(u)
	}

	delayed := p.launcher.DelayedRoutes[key]
	if len(delayed) == 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		time.Sleep(p.launcher.RequestDelay)
		for _, u := range delayed {
			p.Fire(u)
		}
	}()
}

func (p *Page) wait() {
	p.wg.Wait()
}

func (p *Page) exists(selector string) bool {
	if p.launcher.Elements == nil {
		return true
	}
	for _, e := range p.launcher.Elements {
		if e == selector {
			return true
		}
	}
	return false
}

func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

func (p *Page) Cleared() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.cleared...)
}

// Typed returns the text typed into selector so far.
func (p *Page) Typed(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed[selector]
}

func (p *Page) Evaluated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evaluated...)
}

func (p *Page) Decisions() []Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Decision(nil), p.decisions...)
}

func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
