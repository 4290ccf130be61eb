package sandbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cellwarden/cellwarden/pkg/principal"
)

// CapabilityCall is the closed sum type of operations a worker may
// request from the host. There is no prototype chain to harden in Go;
// the invariant that a guest can only ever reach one of these shapes
// is enforced by never handing it anything else.
type CapabilityCall struct {
	Method       string
	ReadFile     *ReadFileParams
	WriteFile    *WriteFileParams
	Fetch        *FetchParams
	Clipboard    *ClipboardParams
	Notification *NotificationParams
	Automation   *AutomationParams
}

// ReadFileParams is the payload for fs.readFile.
type ReadFileParams struct {
	Path string `json:"path"`
}

// WriteFileParams is the payload for fs.writeFile.
type WriteFileParams struct {
	Path string `json:"path"`
	Data string `json:"data"`
}

// FetchParams is the payload for fetch.
type FetchParams struct {
	URL    string            `json:"url"`
	Method string            `json:"method"`
	Headers map[string]string `json:"headers"`
}

// ClipboardParams is the payload for clipboard access.
type ClipboardParams struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
}

// NotificationParams is the payload for a notification request.
type NotificationParams struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// AutomationParams is the payload for an automation (UI-driving) request.
type AutomationParams struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// FetchResponse is the reduced response object handed back to the
// guest: no streaming body, no host Response identity.
type FetchResponse struct {
	OK      bool              `json:"ok"`
	Status  int               `json:"status"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Text    string            `json:"text"`
}

// SecureAPIUnavailableError is raised when a capability is permitted by
// the grant but no adapter is wired to actually perform it.
type SecureAPIUnavailableError struct {
	Capability string
}

func (e *SecureAPIUnavailableError) Error() string {
	return fmt.Sprintf("secure_api_unavailable: %s", e.Capability)
}

// Adapters lets a host wire real implementations for capabilities that
// have a side effect beyond filesystem/network (clipboard, desktop
// notifications, UI automation). Any nil field means "not wired".
type Adapters struct {
	Clipboard    func(ctx context.Context, p ClipboardParams) (string, error)
	Notification func(ctx context.Context, p NotificationParams) error
	Automation   func(ctx context.Context, p AutomationParams) (json.RawMessage, error)
	Fetch        func(ctx context.Context, p FetchParams) (FetchResponse, error)
	ReadFile     func(ctx context.Context, path string) (string, error)
	WriteFile    func(ctx context.Context, path, data string) error
}

// CapabilityRouter is the sole place an RPC method name is mapped to a
// permission request and, once allowed, to an adapter call. It
// implements CapabilityDispatcher.
type CapabilityRouter struct {
	Authority *principal.Authority
	Principal principal.Principal
	Adapters  Adapters
}

// NewCapabilityRouter builds a router bound to one principal for the
// lifetime of a single sandboxed run.
func NewCapabilityRouter(authority *principal.Authority, p principal.Principal, adapters Adapters) *CapabilityRouter {
	return &CapabilityRouter{Authority: authority, Principal: p, Adapters: adapters}
}

// Dispatch parses method/params into a CapabilityCall, evaluates
// permission against the snapshot (not the router's live principal, so
// a worker can never benefit from a grant widened after its snapshot
// was taken), and performs the action if permitted.
func (r *CapabilityRouter) Dispatch(ctx context.Context, snapshot principal.Snapshot, method string, params json.RawMessage) (json.RawMessage, error) {
	call, err := parseCapabilityCall(method, params)
	if err != nil {
		return nil, err
	}
	return dispatchCapability(ctx, r.Authority, r.Principal, snapshot, call, r.Adapters)
}

func parseCapabilityCall(method string, params json.RawMessage) (CapabilityCall, error) {
	call := CapabilityCall{Method: method}
	switch method {
	case "fs.readFile":
		var p ReadFileParams
		if err := json.Unmarshal(params, &p); err != nil {
			return call, err
		}
		call.ReadFile = &p
	case "fs.writeFile":
		var p WriteFileParams
		if err := json.Unmarshal(params, &p); err != nil {
			return call, err
		}
		call.WriteFile = &p
	case "fetch":
		var p FetchParams
		if err := json.Unmarshal(params, &p); err != nil {
			return call, err
		}
		call.Fetch = &p
	case "clipboard":
		var p ClipboardParams
		if err := json.Unmarshal(params, &p); err != nil {
			return call, err
		}
		call.Clipboard = &p
	case "notifications":
		var p NotificationParams
		if err := json.Unmarshal(params, &p); err != nil {
			return call, err
		}
		call.Notification = &p
	case "automation":
		var p AutomationParams
		if err := json.Unmarshal(params, &p); err != nil {
			return call, err
		}
		call.Automation = &p
	default:
		return call, fmt.Errorf("unrecognized capability method: %s", method)
	}
	return call, nil
}

// dispatchCapability is the pure (capability, request) -> outcome
// routing function. Permission is checked with principal.CheckSnapshot
// against the immutable snapshot taken at worker spawn time, never
// against the live grant.
func dispatchCapability(
	ctx context.Context,
	authority *principal.Authority,
	p principal.Principal,
	snapshot principal.Snapshot,
	call CapabilityCall,
	adapters Adapters,
) (json.RawMessage, error) {
	req, err := requestFor(call)
	if err != nil {
		return nil, err
	}

	result := principal.CheckSnapshot(snapshot, req)
	if !result.Allowed {
		return nil, &principal.DeniedError{Principal: p, Request: req, Reason: result.Reason}
	}

	switch call.Method {
	case "fs.readFile":
		if adapters.ReadFile == nil {
			return nil, &SecureAPIUnavailableError{Capability: "fs.readFile"}
		}
		data, err := adapters.ReadFile(ctx, call.ReadFile.Path)
		if err != nil {
			return nil, err
		}
		return json.Marshal(data)
	case "fs.writeFile":
		if adapters.WriteFile == nil {
			return nil, &SecureAPIUnavailableError{Capability: "fs.writeFile"}
		}
		if err := adapters.WriteFile(ctx, call.WriteFile.Path, call.WriteFile.Data); err != nil {
			return nil, err
		}
		return json.Marshal(struct{}{})
	case "fetch":
		if adapters.Fetch == nil {
			return nil, &SecureAPIUnavailableError{Capability: "fetch"}
		}
		resp, err := adapters.Fetch(ctx, *call.Fetch)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	case "clipboard":
		if adapters.Clipboard == nil {
			return nil, &SecureAPIUnavailableError{Capability: "clipboard"}
		}
		text, err := adapters.Clipboard(ctx, *call.Clipboard)
		if err != nil {
			return nil, err
		}
		return json.Marshal(text)
	case "notifications":
		if adapters.Notification == nil {
			return nil, &SecureAPIUnavailableError{Capability: "notifications"}
		}
		if err := adapters.Notification(ctx, *call.Notification); err != nil {
			return nil, err
		}
		return json.Marshal(struct{}{})
	case "automation":
		if adapters.Automation == nil {
			return nil, &SecureAPIUnavailableError{Capability: "automation"}
		}
		return adapters.Automation(ctx, *call.Automation)
	default:
		return nil, fmt.Errorf("unrecognized capability method: %s", call.Method)
	}
}

func requestFor(call CapabilityCall) (principal.Request, error) {
	switch call.Method {
	case "fs.readFile":
		return principal.Request{Kind: principal.RequestFilesystem, Access: principal.AccessRead, Path: call.ReadFile.Path}, nil
	case "fs.writeFile":
		return principal.Request{Kind: principal.RequestFilesystem, Access: principal.AccessReadWrite, Path: call.WriteFile.Path}, nil
	case "fetch":
		return principal.Request{Kind: principal.RequestNetwork, URL: call.Fetch.URL}, nil
	case "clipboard":
		return principal.Request{Kind: principal.RequestClipboard}, nil
	case "notifications":
		return principal.Request{Kind: principal.RequestNotifications}, nil
	case "automation":
		return principal.Request{Kind: principal.RequestAutomation}, nil
	default:
		return principal.Request{}, fmt.Errorf("unrecognized capability method: %s", call.Method)
	}
}
