package chatsync

import (
	"sync"
	"time"
)

// Scroll defaults.
const (
	DefaultScrollCooldown = 1500 * time.Millisecond
	DefaultNearBottom     = 100
)

// ScrollAction is what the message pane should do when new messages arrive.
type ScrollAction int

const (
	// ScrollPreserve keeps the current position.
	ScrollPreserve ScrollAction = iota
	// ScrollDeferred means the user is scrolling; decide again on Settle.
	ScrollDeferred
	// ScrollToBottom jumps to the newest message.
	ScrollToBottom
)

func (a ScrollAction) String() string {
	switch a {
	case ScrollDeferred:
		return "deferred"
	case ScrollToBottom:
		return "bottom"
	default:
		return "preserve"
	}
}

// ScrollController tracks user scroll gestures in the message pane.
//
// It is active for Cooldown after the last gesture. While active, new
// messages do not move the pane and background refreshes are skipped.
type ScrollController struct {
	cooldown   time.Duration
	nearBottom int
	now        func() time.Time

	mu         sync.Mutex
	lastScroll time.Time
	distance   int
	pending    bool
}

// NewScrollController creates a controller. A non-positive cooldown or a
// negative nearBottom uses the default; now may be nil.
func NewScrollController(cooldown time.Duration, nearBottom int, now func() time.Time) *ScrollController {
	if cooldown <= 0 {
		cooldown = DefaultScrollCooldown
	}
	if nearBottom < 0 {
		nearBottom = DefaultNearBottom
	}
	if now == nil {
		now = time.Now
	}
	return &ScrollController{cooldown: cooldown, nearBottom: nearBottom, now: now}
}

// OnScroll records a user scroll gesture that left the pane
// distanceFromBottom units above the newest message.
func (c *ScrollController) OnScroll(distanceFromBottom int) {
	if distanceFromBottom < 0 {
		distanceFromBottom = 0
	}
	c.mu.Lock()
	c.lastScroll = c.now()
	c.distance = distanceFromBottom
	c.mu.Unlock()
}

// SetDistance updates the pane position without counting as a gesture,
// e.g. after the pane itself jumped to the bottom.
func (c *ScrollController) SetDistance(distanceFromBottom int) {
	if distanceFromBottom < 0 {
		distanceFromBottom = 0
	}
	c.mu.Lock()
	c.distance = distanceFromBottom
	c.mu.Unlock()
}

// Active reports whether the user scrolled within the cooldown.
func (c *ScrollController) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked(c.now())
}

func (c *ScrollController) activeLocked(now time.Time) bool {
	return !c.lastScroll.IsZero() && now.Sub(c.lastScroll) < c.cooldown
}

// NearBottom reports whether the last known position is within the
// near-bottom distance.
func (c *ScrollController) NearBottom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.distance <= c.nearBottom
}

// Pending reports whether an auto-scroll is waiting for the cooldown.
func (c *ScrollController) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// OnNewMessages decides how the pane reacts to newly arrived messages.
func (c *ScrollController) OnNewMessages() ScrollAction {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeLocked(c.now()) {
		c.pending = true
		return ScrollDeferred
	}
	if c.distance <= c.nearBottom {
		c.distance = 0
		return ScrollToBottom
	}
	return ScrollPreserve
}

// Settle resolves a deferred auto-scroll once the cooldown has passed.
// It returns true when the pane should now jump to the bottom.
func (c *ScrollController) Settle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pending || c.activeLocked(c.now()) {
		return false
	}
	c.pending = false
	if c.distance <= c.nearBottom {
		c.distance = 0
		return true
	}
	return false
}

// Reset forgets gesture history, e.g. when another conversation is selected.
func (c *ScrollController) Reset() {
	c.mu.Lock()
	c.lastScroll = time.Time{}
	c.distance = 0
	c.pending = false
	c.mu.Unlock()
}
