package models

import "time"

// PresenceKind tags the variant held by a PresenceHint.
type PresenceKind int

const (
	// PresenceUnknown means the record carried no usable presence signal.
	PresenceUnknown PresenceKind = iota
	// PresenceExplicit means an explicit "is online" flag was set.
	PresenceExplicit
	// PresenceTimestamp means only an activity timestamp is available.
	PresenceTimestamp
)

func (k PresenceKind) String() string {
	switch k {
	case PresenceExplicit:
		return "explicit"
	case PresenceTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// PresenceHint is the normalized presence signal of a directory record.
//
// Kind decides how the status is derived. LastSeen is the most specific
// activity timestamp found on the record and is kept for display even when
// Kind is PresenceExplicit. A zero LastSeen means "never seen".
type PresenceHint struct {
	Kind     PresenceKind `json:"kind"`
	LastSeen time.Time    `json:"last_seen,omitempty"`
}

// ExplicitOnline builds a hint for a record with an explicit online flag.
func ExplicitOnline(lastSeen time.Time) PresenceHint {
	return PresenceHint{Kind: PresenceExplicit, LastSeen: lastSeen}
}

// SeenAt builds a hint for a record with only an activity timestamp.
func SeenAt(t time.Time) PresenceHint {
	if t.IsZero() {
		return PresenceHint{}
	}
	return PresenceHint{Kind: PresenceTimestamp, LastSeen: t}
}

// PresenceStatus is the derived presence of a user.
type PresenceStatus struct {
	Online bool `json:"online"`

	// LastSeen is nil when the user has never been seen.
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// LastSeenText is a human readable rendering of LastSeen, empty when
	// LastSeen is nil.
	LastSeenText string `json:"last_seen_text,omitempty"`
}

// PresenceSnapshot is the ephemeral presence view of the selected
// conversation's counterparty. It is always replaced as a whole.
type PresenceSnapshot struct {
	Online       bool       `json:"online"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	Typing       bool       `json:"typing"`
	TypingUserID string     `json:"typing_user_id,omitempty"`
}

// WithTyping returns a copy of s carrying the given typing pair.
func (s PresenceSnapshot) WithTyping(typing bool, userID string) PresenceSnapshot {
	next := s
	next.Typing = typing
	next.TypingUserID = ""
	if typing {
		next.TypingUserID = userID
	}
	return next
}

// TypingStatus is the backend's answer to a typing query.
type TypingStatus struct {
	Typing bool   `json:"typing"`
	UserID string `json:"user_id,omitempty"`
}
