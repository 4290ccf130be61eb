package sandbox

import "encoding/json"

// MessageKind identifies the shape of a frame exchanged between the
// supervisor and a worker process over the newline-delimited JSON wire.
type MessageKind string

const (
	KindAudit     MessageKind = "audit"
	KindOutput    MessageKind = "output"
	KindLimit     MessageKind = "limit"
	KindResult    MessageKind = "result"
	KindError     MessageKind = "error"
	KindRPC       MessageKind = "rpc"
	KindRPCResult MessageKind = "rpcResult"
	KindRPCError  MessageKind = "rpcError"
	KindEvent     MessageKind = "event"
	KindRun       MessageKind = "run"
)

// OutputStream names one of the two output streams a worker may write to.
type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

// LimitKind names the resource whose budget was exceeded.
type LimitKind string

const (
	LimitMemory LimitKind = "memory"
)

// Message is the single wire frame type. Exactly one of the kind-specific
// fields is populated per Kind; the rest are zero. This mirrors the
// teacher's preference for a flat discriminated struct over an interface
// hierarchy when the message set is small and fixed.
type Message struct {
	Kind MessageKind `json:"kind"`

	// KindRun
	Run *RunPayload `json:"run,omitempty"`

	// KindAudit
	Audit json.RawMessage `json:"audit,omitempty"`

	// KindOutput
	Stream OutputStream `json:"stream,omitempty"`
	Text   string       `json:"text,omitempty"`

	// KindLimit
	Limit  LimitKind `json:"limit,omitempty"`
	UsedMB float64   `json:"usedMb,omitempty"`

	// KindResult
	Value json.RawMessage `json:"value,omitempty"`

	// KindError
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// KindRPC / KindRPCResult / KindRPCError
	RPCID     string          `json:"rpcId,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	RPCResult json.RawMessage `json:"rpcResult,omitempty"`
	RPCError  string          `json:"rpcError,omitempty"`

	// KindEvent
	EventName string          `json:"eventName,omitempty"`
	EventData json.RawMessage `json:"eventData,omitempty"`
}

// RunPayload is the initial message the supervisor posts to a freshly
// spawned worker. It carries everything the worker needs and nothing of
// the parent's live state.
type RunPayload struct {
	PrincipalType      string          `json:"principalType"`
	PrincipalID        string          `json:"principalId"`
	LanguageFlavor     string          `json:"languageFlavor"`
	Source             string          `json:"source"`
	PermissionSnapshot json.RawMessage `json:"permissionSnapshot"`
	TimeoutMs          int64           `json:"timeoutMs"`
	MemoryMB           int64           `json:"memoryMb"`
	MaxOutputBytes     int64           `json:"maxOutputBytes"`
	Label              string          `json:"label"`
}
