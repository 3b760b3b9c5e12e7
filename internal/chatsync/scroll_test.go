package chatsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScrollControllerCooldown(t *testing.T) {
	clock := newFakeClock()
	c := NewScrollController(0, -1, clock.Now)

	require.False(t, c.Active())
	c.OnScroll(500)
	require.True(t, c.Active())

	clock.Advance(1499 * time.Millisecond)
	require.True(t, c.Active())

	clock.Advance(time.Millisecond)
	require.False(t, c.Active())
}

func TestScrollControllerNewMessages(t *testing.T) {
	tests := []struct {
		name     string
		distance int
		elapsed  time.Duration
		want     ScrollAction
	}{
		{name: "never scrolled", distance: -1, want: ScrollToBottom},
		{name: "scrolling", distance: 10, elapsed: 200 * time.Millisecond, want: ScrollDeferred},
		{name: "settled near bottom", distance: 100, elapsed: 2 * time.Second, want: ScrollToBottom},
		{name: "settled far away", distance: 101, elapsed: 2 * time.Second, want: ScrollPreserve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			c := NewScrollController(DefaultScrollCooldown, DefaultNearBottom, clock.Now)
			if tt.distance >= 0 {
				c.OnScroll(tt.distance)
			}
			clock.Advance(tt.elapsed)
			require.Equal(t, tt.want, c.OnNewMessages())
		})
	}
}

func TestScrollControllerSettleFiresOnlyNearBottom(t *testing.T) {
	clock := newFakeClock()
	c := NewScrollController(DefaultScrollCooldown, DefaultNearBottom, clock.Now)

	// Scrolled up far; a message arrives; the user then stops.
	c.OnScroll(800)
	require.Equal(t, ScrollDeferred, c.OnNewMessages())
	clock.Advance(2 * time.Second)
	require.False(t, c.Settle())
	require.False(t, c.Pending())

	// Scrolling back near the bottom re-arms the cooldown.
	c.OnScroll(800)
	clock.Advance(500 * time.Millisecond)
	c.OnScroll(30)
	require.Equal(t, ScrollDeferred, c.OnNewMessages())

	clock.Advance(1400 * time.Millisecond)
	require.False(t, c.Settle())
	require.True(t, c.Pending())

	clock.Advance(100 * time.Millisecond)
	require.True(t, c.Settle())
	require.False(t, c.Pending())
	require.False(t, c.Settle())
}

func TestScrollControllerReset(t *testing.T) {
	clock := newFakeClock()
	c := NewScrollController(DefaultScrollCooldown, DefaultNearBottom, clock.Now)
	c.OnScroll(900)
	c.OnNewMessages()
	c.Reset()

	require.False(t, c.Active())
	require.False(t, c.Pending())
	require.True(t, c.NearBottom())
	require.Equal(t, "bottom", c.OnNewMessages().String())
}
