package schema

import "errors"

var (
	// ErrFraming indicates an IPC length header that is not an unsigned decimal.
	ErrFraming = errors.New("invalid message length header")
	// ErrPayload indicates an IPC body that is not valid JSON.
	ErrPayload = errors.New("invalid message payload")
	// ErrLaunch indicates the terminal program did not start in time.
	ErrLaunch = errors.New("terminal failed to start")
	// ErrResizePropagation indicates a resize could not be applied to the terminal.
	ErrResizePropagation = errors.New("terminal resize failed")
	// ErrMissingDependency indicates required executables are not installed.
	ErrMissingDependency = errors.New("required executables missing")
	// ErrConnectionTimeout indicates the running instance could not be reached.
	ErrConnectionTimeout = errors.New("unable to connect to the running instance")
	// ErrEndpointInUse indicates another live instance owns the endpoint.
	ErrEndpointInUse = errors.New("endpoint already in use")
	// ErrWindowClosed indicates the window has shut down.
	ErrWindowClosed = errors.New("window closed")
	// ErrSessionNotFound indicates a requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSecondaryPaneAbsent indicates the secondary pane must be opened first.
	ErrSecondaryPaneAbsent = errors.New("secondary pane is not open")
	// ErrMoveNotAllowed indicates a move other than primary to secondary.
	ErrMoveNotAllowed = errors.New("only tabs from the primary pane can be moved to the secondary pane")
	// ErrEmptyLabel indicates a rename to an empty label.
	ErrEmptyLabel = errors.New("label is empty")
	// ErrUnknownSurface indicates a surface id with no owning session.
	ErrUnknownSurface = errors.New("unknown surface")
	// ErrInvalidSetting indicates a settings key or value was rejected.
	ErrInvalidSetting = errors.New("invalid setting")
)
