package schema

import "strconv"

// SessionID identifies a terminal session. IDs are allocated from a
// per-run counter and survive moves between panes.
type SessionID uint64

// String renders the id the way tab labels and console commands refer to it.
func (id SessionID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseSessionID parses the decimal form produced by String.
func ParseSessionID(value string) (SessionID, error) {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil || n == 0 {
		return 0, ErrSessionNotFound
	}
	return SessionID(n), nil
}

// SurfaceID identifies an embedding surface handed out by a surface provider.
type SurfaceID uint64

// PaneKind distinguishes the always-present primary pane from the optional
// secondary pane.
type PaneKind string

const (
	// PanePrimary is the left pane; it exists for the lifetime of the window.
	PanePrimary PaneKind = "primary"
	// PaneSecondary is the right pane in dual-pane mode.
	PaneSecondary PaneKind = "secondary"
)

// ParsePaneKind accepts the console spellings of a pane.
func ParsePaneKind(value string) (PaneKind, bool) {
	switch value {
	case "primary", "main", "left", "1":
		return PanePrimary, true
	case "secondary", "second", "right", "2":
		return PaneSecondary, true
	default:
		return "", false
	}
}

// WindowMode describes how the window is presented.
type WindowMode string

const (
	// WindowNormal is a regular visible window.
	WindowNormal WindowMode = "normal"
	// WindowHidden starts the window hidden (tray mode).
	WindowHidden WindowMode = "hidden"
	// WindowMaximized starts the window maximized.
	WindowMaximized WindowMode = "maximized"
)
