package models

import "errors"

// Sentinel errors shared by the backend client and the sync layer.
// Transport implementations map their failures onto these so callers can
// use errors.Is without depending on the transport.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)
