package capture

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func gaAndPixel() []parser.TrackerConfig {
	return []parser.TrackerConfig{
		{Name: "GA", URL: "/collect"},
		{Name: "Pixel", URL: "facebook.com/tr", AbortRequest: true},
	}
}

func TestBuffer_HandleAppendsInArrivalOrder(t *testing.T) {
	b := NewBuffer(gaAndPixel())

	assert.Equal(t, Continue, b.Handle("https://www.google-analytics.com/collect?ea=page_view"))
	assert.Equal(t, Continue, b.Handle("https://www.google-analytics.com/collect?ea=add_to_cart"))
	assert.Equal(t, Abort, b.Handle("https://www.facebook.com/tr?ev=AddToCart"))
	assert.Equal(t, Continue, b.Handle("https://cdn.example.com/app.js?v=3"))

	ga, err := b.Requests("GA")
	require.NoError(t, err)
	require.Len(t, ga, 2)
	assert.Equal(t, "page_view", ga[0].Params["ea"])
	assert.Equal(t, "add_to_cart", ga[1].Params["ea"])

	pixel, err := b.Requests("Pixel")
	require.NoError(t, err)
	require.Len(t, pixel, 1)
	assert.Equal(t, "AddToCart", pixel[0].Params["ev"])

	last, ok, err := b.Last("GA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "add_to_cart", last.Params["ea"])
}

func TestBuffer_OverlappingTrackersFanOut(t *testing.T) {
	b := NewBuffer([]parser.TrackerConfig{
		{Name: "GA", URL: "google-analytics.com"},
		{Name: "GACollect", URL: "/collect", AbortRequest: true},
	})

	decision := b.Handle("https://www.google-analytics.com/collect?ea=x")
	assert.Equal(t, Abort, decision)
	assert.Equal(t, 1, b.Count("GA"))
	assert.Equal(t, 1, b.Count("GACollect"))
}

func TestBuffer_UndecodableRequestKeepsDecision(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := NewBuffer(gaAndPixel(), WithLogger(zap.New(core)))

	assert.Equal(t, Abort, b.Handle("https://www.facebook.com/tr"))
	assert.Equal(t, 0, b.Count("Pixel"))
	assert.Equal(t, 1, logs.FilterMessage("Tracked request not captured").Len())
}

func TestBuffer_EmptyTrackerList(t *testing.T) {
	b := NewBuffer(gaAndPixel())

	list, err := b.Requests("GA")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, ok, err := b.Last("GA")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuffer_UnknownTracker(t *testing.T) {
	b := NewBuffer(gaAndPixel())

	_, err := b.Requests("Hotjar")
	assert.ErrorIs(t, err, ErrUnknownTracker)

	_, _, err = b.Last("Hotjar")
	assert.ErrorIs(t, err, ErrUnknownTracker)

	err = b.WaitFor(context.Background(), "Hotjar", 1)
	assert.ErrorIs(t, err, ErrUnknownTracker)
}

func TestBuffer_RequestsReturnsSnapshot(t *testing.T) {
	b := NewBuffer(gaAndPixel())
	b.Handle("https://www.google-analytics.com/collect?ea=a")

	list, err := b.Requests("GA")
	require.NoError(t, err)
	b.Handle("https://www.google-analytics.com/collect?ea=b")

	assert.Len(t, list, 1)
	assert.Equal(t, 2, b.Count("GA"))
}

func TestBuffer_FanOutParamsAreIndependent(t *testing.T) {
	b := NewBuffer([]parser.TrackerConfig{
		{Name: "A", URL: "/collect"},
		{Name: "B", URL: "collect"},
	})
	b.Handle("https://x/collect?ea=1")

	a, _ := b.Requests("A")
	a[0].Params["ea"] = "changed"

	bl, _ := b.Requests("B")
	assert.Equal(t, "1", bl[0].Params["ea"])
}

func TestBuffer_WaitFor(t *testing.T) {
	b := NewBuffer(gaAndPixel())

	done := make(chan error, 1)
	go func() {
		done <- b.WaitFor(context.Background(), "GA", 2)
	}()

	b.Handle("https://www.google-analytics.com/collect?ea=1")
	b.Handle("https://www.google-analytics.com/collect?ea=2")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitFor did not return")
	}
}

func TestBuffer_WaitForAlreadySatisfied(t *testing.T) {
	b := NewBuffer(gaAndPixel())
	b.Handle("https://www.google-analytics.com/collect?ea=1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, b.WaitFor(ctx, "GA", 1))
}

func TestBuffer_WaitForTimeout(t *testing.T) {
	b := NewBuffer(gaAndPixel())
	b.Handle("https://www.google-analytics.com/collect?ea=1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.WaitFor(ctx, "GA", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "has 1 of 3")
}

func TestBuffer_ConcurrentHandle(t *testing.T) {
	b := NewBuffer(gaAndPixel())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Handle(fmt.Sprintf("https://www.google-analytics.com/collect?n=%d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, b.Count("GA"))
	snap := b.Snapshot()
	assert.Len(t, snap["GA"], 50)
	assert.Empty(t, snap["Pixel"])
}
