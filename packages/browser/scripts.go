package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// DefaultDataLayer is the page global holding analytics events.
const DefaultDataLayer = "dataLayer"

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// ClickScript clicks the first element matching selector and evaluates to true,
// or to false when nothing matches.
func ClickScript(selector string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) return false; el.click(); return true; })()`, quote(selector))
}

// ClearScript empties the value of the first element matching selector and
// fires an input event. It evaluates to false when nothing matches.
func ClearScript(selector string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) return false; el.value = ""; el.dispatchEvent(new Event("input", { bubbles: true })); return true; })()`, quote(selector))
}

// DataLayerScript evaluates to the named page global, or null when it is unset.
func DataLayerScript(variable string) string {
	return fmt.Sprintf(`(window[%s] ?? null)`, quote(variable))
}

// Click runs ClickScript on page.
func Click(ctx context.Context, page Page, selector string) error {
	return runElementScript(ctx, page, selector, ClickScript(selector))
}

// Clear runs ClearScript on page.
func Clear(ctx context.Context, page Page, selector string) error {
	return runElementScript(ctx, page, selector, ClearScript(selector))
}

func runElementScript(ctx context.Context, page Page, selector, script string) error {
	out, err := page.Evaluate(ctx, script)
	if err != nil {
		return err
	}
	if !bytes.Equal(bytes.TrimSpace(out), []byte("true")) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

// DataLayer reads a page global as JSON. It satisfies the assertions package's
// data layer source.
type DataLayer struct {
	Page     Page
	Variable string
}

func (d DataLayer) DataLayer(ctx context.Context) (json.RawMessage, error) {
	variable := d.Variable
	if variable == "" {
		variable = DefaultDataLayer
	}
	return d.Page.Evaluate(ctx, DataLayerScript(variable))
}
