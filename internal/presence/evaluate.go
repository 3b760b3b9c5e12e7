package presence

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tOgg1/sitesync/internal/models"
)

// DefaultOnlineWindow is how recent a timestamp must be to count as online.
const DefaultOnlineWindow = 5 * time.Minute

// Evaluator derives presence status from normalized user records.
type Evaluator struct {
	// OperatorID is the authenticated user; they are always online to themselves.
	OperatorID string

	// Window is the online window for timestamp hints.
	Window time.Duration
}

// NewEvaluator creates an Evaluator. A non-positive window uses DefaultOnlineWindow.
func NewEvaluator(operatorID string, window time.Duration) Evaluator {
	if window <= 0 {
		window = DefaultOnlineWindow
	}
	return Evaluator{OperatorID: operatorID, Window: window}
}

// Evaluate derives the status of user at now.
func (e Evaluator) Evaluate(user models.UserRecord, now time.Time) models.PresenceStatus {
	window := e.Window
	if window <= 0 {
		window = DefaultOnlineWindow
	}

	status := models.PresenceStatus{}
	hint := user.Presence
	if !hint.LastSeen.IsZero() {
		seen := hint.LastSeen
		status.LastSeen = &seen
		status.LastSeenText = humanize.RelTime(seen, now, "ago", "from now")
	}

	switch {
	case e.OperatorID != "" && user.ID == e.OperatorID:
		status.Online = true
	case hint.Kind == models.PresenceExplicit:
		status.Online = true
	case !hint.LastSeen.IsZero() && now.Sub(hint.LastSeen) < window:
		status.Online = true
	}
	return status
}

// Evaluate is a convenience wrapper using DefaultOnlineWindow.
func Evaluate(user models.UserRecord, operatorID string, now time.Time) models.PresenceStatus {
	return NewEvaluator(operatorID, DefaultOnlineWindow).Evaluate(user, now)
}

// Describe renders a presence line: "online", "last seen 3 minutes ago" or
// "offline" when the user was never seen.
func Describe(online bool, lastSeen *time.Time, now time.Time) string {
	switch {
	case online:
		return "online"
	case lastSeen != nil && !lastSeen.IsZero():
		return "last seen " + humanize.RelTime(*lastSeen, now, "ago", "from now")
	default:
		return "offline"
	}
}
