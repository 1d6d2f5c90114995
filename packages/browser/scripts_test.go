package browser_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/beaconspec/packages/browser"
	"github.com/abdul-hamid-achik/beaconspec/packages/browser/browsertest"
)

func newPage(t *testing.T, l *browsertest.Launcher) (browser.Page, *browsertest.Page) {
	t.Helper()
	b, err := l.Launch(context.Background(), browser.LaunchOptions{Headless: true})
	require.NoError(t, err)
	p, err := b.NewPage(context.Background())
	require.NoError(t, err)
	return p, p.(*browsertest.Page)
}

func TestClickScript_QuotesSelector(t *testing.T) {
	script := browser.ClickScript(`a[href="/cart"]`)
	assert.Contains(t, script, `document.querySelector("a[href=\"/cart\"]")`)
}

func TestClick(t *testing.T) {
	l := &browsertest.Launcher{
		Elements: []string{"#buy"},
		Routes:   map[string][]string{"#buy": {"https://t.example.com/collect?ea=buy"}},
	}
	p, fake := newPage(t, l)

	require.NoError(t, browser.Click(context.Background(), p, "#buy"))
	assert.Equal(t, []string{"#buy"}, fake.Clicks())
	assert.Len(t, fake.Decisions(), 1)

	err := browser.Click(context.Background(), p, "#missing")
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestClear(t *testing.T) {
	p, fake := newPage(t, &browsertest.Launcher{Elements: []string{"#q"}})

	require.NoError(t, browser.Clear(context.Background(), p, "#q"))
	assert.Equal(t, []string{"#q"}, fake.Cleared())
	assert.ErrorIs(t, browser.Clear(context.Background(), p, "#other"), browser.ErrElementNotFound)
}

func TestDataLayer(t *testing.T) {
	p, _ := newPage(t, &browsertest.Launcher{DataLayer: `[{"event":"gtm.js"}]`})

	raw, err := browser.DataLayer{Page: p}.DataLayer(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"event":"gtm.js"}]`, string(raw))

	p, _ = newPage(t, &browsertest.Launcher{})
	raw, err = browser.DataLayer{Page: p}.DataLayer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestDataLayerScript_CustomVariable(t *testing.T) {
	assert.Equal(t, `(window["digitalData"] ?? null)`, browser.DataLayerScript("digitalData"))
}
