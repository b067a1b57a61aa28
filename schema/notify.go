package schema

// WindowEventType describes a pane, session or window change.
type WindowEventType string

const (
	// EventSessionCreated indicates a session was added to a pane.
	EventSessionCreated WindowEventType = "session_created"
	// EventSessionClosed indicates a session was removed and terminated.
	EventSessionClosed WindowEventType = "session_closed"
	// EventSessionMoved indicates a session changed panes.
	EventSessionMoved WindowEventType = "session_moved"
	// EventSessionRenamed indicates a label change.
	EventSessionRenamed WindowEventType = "session_renamed"
	// EventSessionFocused indicates a pane's focused session changed.
	EventSessionFocused WindowEventType = "session_focused"
	// EventSessionFailed indicates a spawn or restart failed.
	EventSessionFailed WindowEventType = "session_failed"
	// EventSessionExited indicates the terminal process ended on its own.
	EventSessionExited WindowEventType = "session_exited"
	// EventSessionRestarted indicates the terminal was relaunched.
	EventSessionRestarted WindowEventType = "session_restarted"
	// EventPaneOpened indicates the secondary pane appeared.
	EventPaneOpened WindowEventType = "pane_opened"
	// EventPaneClosed indicates the secondary pane was destroyed.
	EventPaneClosed WindowEventType = "pane_closed"
	// EventWindowRaised indicates the window was brought to the foreground.
	EventWindowRaised WindowEventType = "window_raised"
	// EventSettingsApplied indicates new settings reached every session.
	EventSettingsApplied WindowEventType = "settings_applied"
)

// WindowEvent is emitted by the pane manager after each completed change.
type WindowEvent struct {
	Type    WindowEventType
	Pane    PaneKind
	Session SessionSnapshot
	Error   string
}
