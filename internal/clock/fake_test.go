package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func TestFake_AdvanceAndSet(t *testing.T) {
	c := Fake(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), c.Now())

	c.Set(epoch.Add(-time.Minute))
	assert.Equal(t, epoch.Add(-time.Minute), c.Now())
}

func TestFake_TickerFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(30 * time.Second)
	defer ticker.Stop()

	select {
	case <-ticker.C:
		t.Fatal("ticked before advancing")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case got := <-ticker.C:
		assert.Equal(t, epoch.Add(30*time.Second), got)
	default:
		t.Fatal("expected a tick")
	}

	// Several intervals at once coalesce into the buffered slot.
	c.Advance(2 * time.Minute)
	require.Len(t, ticker.C, 1)
	<-ticker.C
	assert.Len(t, ticker.C, 0)
}

func TestFake_StoppedTickerIsSilent(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	ticker.Stop()

	c.Advance(time.Minute)
	assert.Len(t, ticker.C, 0)
}

func TestFake_NonPositiveIntervalPanics(t *testing.T) {
	assert.Panics(t, func() { Fake(epoch).NewTicker(0) })
}

func TestReal(t *testing.T) {
	c := Real()
	before := time.Now()
	assert.False(t, c.Now().Before(before))

	ticker := c.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C:
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
}
