package wsmux

import "errors"

// Sentinel errors surfaced through Lifecycle.OnError or returned from
// package functions. Match with errors.Is.
var (
	// ErrGroupNotFound is reported when the reaper is asked to (re)dial
	// a groupID the registry no longer holds (spec ConfigurationError).
	ErrGroupNotFound = errors.New("wsmux: group not found")
	// ErrSocketGone is reported when a send is attempted on a group
	// whose socket disappeared between the caller's check and the I/O.
	ErrSocketGone = errors.New("wsmux: socket not connected")
	// ErrUnknownEventKind is reported when a ChannelPolicy encounters an
	// event_type it does not recognize.
	ErrUnknownEventKind = errors.New("wsmux: unknown event kind")
)
