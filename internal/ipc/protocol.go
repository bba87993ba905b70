package ipc

// Commands understood by a running session.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
)

type Request struct {
	Command string `json:"command"`
}

// Response carries the session state and, for status, the current turn index.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Turn    int    `json:"turn,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
