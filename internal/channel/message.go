package channel

// Message types of the module channel.
const (
	// TypeGetModuleFile requests the source of `Path`.
	TypeGetModuleFile = "getModuleFile"
	// TypeListFiles requests the paths of all project files.
	TypeListFiles = "listFiles"
	// TypeChange is pushed by the server when a served file was modified.
	TypeChange = "change"
	// TypeRemove is pushed by the server when a served file was removed.
	TypeRemove = "remove"
)

// Message is a request, a response or a push of the module channel. Responses carry
// the id of their request, pushes have no id.
type Message struct {
	ID      uint64   `json:"id,omitempty"`
	Type    string   `json:"type,omitempty"`
	Path    string   `json:"path,omitempty"`
	Content string   `json:"content,omitempty"`
	Exists  bool     `json:"exists,omitempty"`
	Files   []string `json:"files,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Change is a file change pushed by the server.
type Change struct {
	Path    string
	Removed bool
}
