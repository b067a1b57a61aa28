package schema

import "strings"

// ActionOpenNewTab asks the primary instance to open a tab.
const ActionOpenNewTab = "open_new_tab"

// Message is the request a client instance forwards to the primary. Folder
// and Command are null on the wire when unset.
type Message struct {
	Action  string  `json:"action"`
	Folder  *string `json:"folder"`
	Command *string `json:"command"`
}

// NewOpenTabMessage builds an open_new_tab request. Empty values become null.
func NewOpenTabMessage(folder, command string) Message {
	msg := Message{Action: ActionOpenNewTab}
	if folder = strings.TrimSpace(folder); folder != "" {
		msg.Folder = &folder
	}
	if command = strings.TrimSpace(command); command != "" {
		msg.Command = &command
	}
	return msg
}

// FolderValue returns the folder or "" when null.
func (m Message) FolderValue() string {
	if m.Folder == nil {
		return ""
	}
	return *m.Folder
}

// CommandValue returns the command or "" when null.
func (m Message) CommandValue() string {
	if m.Command == nil {
		return ""
	}
	return *m.Command
}

// OpensTab reports whether the message asks for a new tab. A missing action
// is treated like open_new_tab.
func (m Message) OpensTab() bool {
	return m.Action == "" || m.Action == ActionOpenNewTab
}
