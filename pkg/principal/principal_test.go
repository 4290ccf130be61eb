package principal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthority_Check_LockedDownDefault(t *testing.T) {
	auth := NewAuthority(nil, nil)
	p := Principal{Type: TypeAI, ID: "copilot-1"}

	result := auth.Check(p, Request{Kind: RequestFilesystem, Access: AccessRead, Path: "/tmp/workbook"})
	assert.False(t, result.Allowed)

	result = auth.Check(p, Request{Kind: RequestNetwork, URL: "https://example.com"})
	assert.False(t, result.Allowed)

	result = auth.Check(p, Request{Kind: RequestClipboard})
	assert.False(t, result.Allowed)
}

func TestAuthority_Grant_FilesystemWidensOnly(t *testing.T) {
	auth := NewAuthority(nil, nil)
	p := Principal{Type: TypeScript, ID: "macro-1"}

	auth.Grant(p, Update{FilesystemRead: []string{"/tmp/workbook"}})
	result := auth.Check(p, Request{Kind: RequestFilesystem, Access: AccessRead, Path: "/tmp/workbook/sheet1.csv"})
	assert.True(t, result.Allowed)

	result = auth.Check(p, Request{Kind: RequestFilesystem, Access: AccessReadWrite, Path: "/tmp/workbook/sheet1.csv"})
	assert.False(t, result.Allowed, "read scope must not satisfy a readwrite request")

	auth.Grant(p, Update{FilesystemReadWrite: []string{"/tmp/workbook"}})
	result = auth.Check(p, Request{Kind: RequestFilesystem, Access: AccessReadWrite, Path: "/tmp/workbook/sheet1.csv"})
	assert.True(t, result.Allowed, "readwrite scope implicitly grants read and write")
}

func TestAuthority_Grant_NetworkModeNeverDemotes(t *testing.T) {
	auth := NewAuthority(nil, nil)
	p := Principal{Type: TypeConnector, ID: "sheets-sync"}

	auth.Grant(p, Update{NetworkMode: NetworkFull})
	auth.Grant(p, Update{NetworkMode: NetworkNone})

	result := auth.Check(p, Request{Kind: RequestNetwork, URL: "https://anything.example/"})
	assert.True(t, result.Allowed, "a none update must not demote an existing full grant")
}

func TestAuthority_Check_NetworkAllowlist(t *testing.T) {
	auth := NewAuthority(nil, nil)
	p := Principal{Type: TypeAI, ID: "copilot-1"}

	auth.Grant(p, Update{NetworkMode: NetworkAllowlist, NetworkAllowlist: []string{"*.example.com", "api.trusted.io:8443"}})

	cases := []struct {
		name    string
		url     string
		allowed bool
	}{
		{"subdomain match", "https://data.example.com/v1", true},
		{"exact host+port match", "https://api.trusted.io:8443/rpc", true},
		{"host mismatch", "https://evil.test/", false},
		{"port mismatch", "https://api.trusted.io:9999/rpc", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := auth.Check(p, Request{Kind: RequestNetwork, URL: tc.url})
			assert.Equal(t, tc.allowed, result.Allowed, result.Reason)
		})
	}
}

func TestAuthority_Check_NetworkAllowlist_OriginEntryRejectsLookalikeSuffix(t *testing.T) {
	auth := NewAuthority(nil, nil)
	p := Principal{Type: TypeAI, ID: "copilot-1"}

	auth.Grant(p, Update{NetworkMode: NetworkAllowlist, NetworkAllowlist: []string{"https://good.com"}})

	result := auth.Check(p, Request{Kind: RequestNetwork, URL: "https://good.com/data"})
	assert.True(t, result.Allowed, "exact origin match must be allowed")

	result = auth.Check(p, Request{Kind: RequestNetwork, URL: "https://good.com.evil.com/data"})
	assert.False(t, result.Allowed, "an attacker-controlled host sharing the allowed origin as a prefix must not match")
}

func TestAuthority_Ensure_DeniedWithoutPrompt(t *testing.T) {
	auth := NewAuthority(nil, nil)
	p := Principal{Type: TypeAI, ID: "copilot-1"}

	err := auth.Ensure(p, Request{Kind: RequestAutomation}, EnsureOptions{PromptIfDenied: false})
	require.Error(t, err)

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, p, denied.Principal)
}

func TestAuthority_Ensure_PromptWidensExactScope(t *testing.T) {
	prompted := false
	auth := NewAuthority(nil, func(p Principal, req Request) bool {
		prompted = true
		return true
	})
	p := Principal{Type: TypeUser, ID: "u1"}

	err := auth.Ensure(p, Request{Kind: RequestFilesystem, Access: AccessRead, Path: "/tmp/a"}, EnsureOptions{PromptIfDenied: true})
	require.NoError(t, err)
	assert.True(t, prompted)

	result := auth.Check(p, Request{Kind: RequestFilesystem, Access: AccessRead, Path: "/tmp/b"})
	assert.False(t, result.Allowed, "prompt must widen only the exact requested scope")
}

func TestAuthority_Ensure_PromptDeclined(t *testing.T) {
	auth := NewAuthority(nil, func(p Principal, req Request) bool { return false })
	p := Principal{Type: TypeUser, ID: "u1"}

	err := auth.Ensure(p, Request{Kind: RequestClipboard}, EnsureOptions{PromptIfDenied: true})
	require.Error(t, err)
}

type recordingSink struct {
	checked []CheckResult
	denied  []string
	granted int
}

func (r *recordingSink) PermissionChecked(p Principal, req Request, result CheckResult) {
	r.checked = append(r.checked, result)
}
func (r *recordingSink) PermissionPrompted(p Principal, req Request) {}
func (r *recordingSink) PermissionGranted(p Principal, req Request)  { r.granted++ }
func (r *recordingSink) PermissionDenied(p Principal, req Request, reason string) {
	r.denied = append(r.denied, reason)
}

func TestAuthority_AuditsEveryDecision(t *testing.T) {
	sink := &recordingSink{}
	auth := NewAuthority(sink, nil)
	p := Principal{Type: TypeAI, ID: "copilot-1"}

	auth.Check(p, Request{Kind: RequestClipboard})
	_ = auth.Ensure(p, Request{Kind: RequestClipboard}, EnsureOptions{})

	require.Len(t, sink.checked, 2)
	assert.Len(t, sink.denied, 1)
}

func TestAuthority_GetSnapshot_IsIndependentCopy(t *testing.T) {
	auth := NewAuthority(nil, nil)
	p := Principal{Type: TypeSystem, ID: "core"}

	auth.Grant(p, Update{FilesystemRead: []string{"/tmp/a"}})
	snap := auth.GetSnapshot(p)
	require.Len(t, snap.FilesystemRead, 1)

	auth.Grant(p, Update{FilesystemRead: []string{"/tmp/b"}})
	assert.Len(t, snap.FilesystemRead, 1, "a previously taken snapshot must not observe later grants")
}
