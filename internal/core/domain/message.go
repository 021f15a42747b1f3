package domain

// Message types exchanged over the private child channel.
const (
	MsgFileModified        = "fileModified"
	MsgSpecialReload       = "specialReload"
	MsgRemoveSpecialReload = "removeSpecialReload"
	MsgRefreshPage         = "refreshPage"
	MsgRefreshStyles       = "refreshStyles"
	MsgRefreshImages       = "refreshImages"
)

// DefaultReadyEvent is the signal a child sends once it is able to serve requests.
const DefaultReadyEvent = "online"

// ChildMessage is a decoded message received from the supervised child.
// The concrete type is one of SignalMessage, SpecialReloadMessage,
// RemoveSpecialReloadMessage or RefreshMessage.
type ChildMessage interface {
	childMessage()
}

// SignalMessage is a bare named signal, such as the readiness event.
type SignalMessage struct {
	Name string
	// URL is the address the app is reachable at, if the child reported one.
	URL string
}

// SpecialReloadMessage registers a special reload rule.
type SpecialReloadMessage struct {
	Patterns      []string
	ModifiedEvent string
	AutoRefresh   AutoRefresh
}

// RemoveSpecialReloadMessage drops every rule registered with ModifiedEvent.
type RemoveSpecialReloadMessage struct {
	ModifiedEvent string
}

// RefreshMessage asks the coordinator for a refresh without any file change.
type RefreshMessage struct {
	Flags RefreshFlags
}

func (SignalMessage) childMessage()              {}
func (SpecialReloadMessage) childMessage()       {}
func (RemoveSpecialReloadMessage) childMessage() {}
func (RefreshMessage) childMessage()             {}

// CoreMessage is a message sent from the orchestrator to the child.
type CoreMessage struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// FileModified builds the message sent for every special reload.
func FileModified(path string) CoreMessage {
	return CoreMessage{Type: MsgFileModified, Path: path}
}
