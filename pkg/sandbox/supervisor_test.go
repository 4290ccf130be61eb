package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellwarden/cellwarden/pkg/principal"
)

// scriptRunner launches a literal shell script as the worker, letting
// tests simulate worker wire-protocol behavior without a real
// JavaScript or Python interpreter.
func scriptRunner(script string) Runner {
	return ShellRunnerFunc(func(ctx context.Context, flavor string) (*exec.Cmd, error) {
		cmd := shellCommandContext(ctx, script)
		setSysProcAttr(cmd)
		return cmd, nil
	})
}

type fakeForwarder struct {
	phases []string
	audits int
}

func (f *fakeForwarder) ForwardWorkerAudit(label string, payload json.RawMessage) { f.audits++ }
func (f *fakeForwarder) RunLifecycle(label, phase string)                         { f.phases = append(f.phases, phase) }

func TestSupervisor_Run_SettlesOnResult(t *testing.T) {
	script := `read -r _; echo '{"kind":"result","value":42}'`
	sup := NewSupervisor(scriptRunner(script), nil, nil)

	result, err := sup.Run(context.Background(), RunRequest{
		Principal:      principal.Principal{Type: principal.TypeScript, ID: "s1"},
		LanguageFlavor: "javascript",
		TimeoutMs:      2000,
		Label:          "unit.test",
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "42", string(result.Value))
}

func TestSupervisor_Run_SettlesOnError(t *testing.T) {
	script := `read -r _; echo '{"kind":"error","errorKind":"permission_denied","errorMessage":"no access"}'`
	sup := NewSupervisor(scriptRunner(script), nil, nil)

	_, err := sup.Run(context.Background(), RunRequest{
		Principal:      principal.Principal{Type: principal.TypeScript, ID: "s1"},
		LanguageFlavor: "javascript",
		TimeoutMs:      2000,
	})
	require.Error(t, err)
	var typed *TypedError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "permission_denied", typed.Kind)
}

func TestSupervisor_Run_Timeout(t *testing.T) {
	script := `read -r _; sleep 5; echo '{"kind":"result","value":1}'`
	sup := NewSupervisor(scriptRunner(script), nil, nil)

	_, err := sup.Run(context.Background(), RunRequest{
		Principal:      principal.Principal{Type: principal.TypeScript, ID: "s1"},
		LanguageFlavor: "javascript",
		TimeoutMs:      200,
	})
	require.Error(t, err)
	var typed *TypedError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "sandbox_timeout", typed.Kind)
}

func TestSupervisor_Run_OutputLimitExceeded(t *testing.T) {
	script := `read -r _; for i in $(seq 1 50); do echo '{"kind":"output","stream":"stdout","text":"0123456789"}'; done; echo '{"kind":"result","value":1}'`
	sup := NewSupervisor(scriptRunner(script), nil, nil)

	_, err := sup.Run(context.Background(), RunRequest{
		Principal:      principal.Principal{Type: principal.TypeScript, ID: "s1"},
		LanguageFlavor: "javascript",
		TimeoutMs:      2000,
		MaxOutputBytes: 50,
	})
	require.Error(t, err)
	var typed *TypedError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "sandbox_output_limit", typed.Kind)
}

func TestSupervisor_Run_MemoryLimit(t *testing.T) {
	script := `read -r _; echo '{"kind":"limit","limit":"memory","usedMb":480}'`
	sup := NewSupervisor(scriptRunner(script), nil, nil)

	_, err := sup.Run(context.Background(), RunRequest{
		Principal:      principal.Principal{Type: principal.TypeScript, ID: "s1"},
		LanguageFlavor: "javascript",
		TimeoutMs:      2000,
		MemoryMB:       512,
	})
	require.Error(t, err)
	var typed *TypedError
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "sandbox_memory_limit", typed.Kind)
}

func TestSupervisor_Run_ForwardsAuditAndLifecycle(t *testing.T) {
	script := `read -r _; echo '{"kind":"audit","audit":{"eventType":"security.formula.eval"}}'; echo '{"kind":"result","value":1}'`
	fwd := &fakeForwarder{}
	sup := NewSupervisor(scriptRunner(script), fwd, nil)

	_, err := sup.Run(context.Background(), RunRequest{
		Principal:      principal.Principal{Type: principal.TypeScript, ID: "s1"},
		LanguageFlavor: "javascript",
		TimeoutMs:      2000,
		Label:          "unit.audit",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fwd.audits)
	assert.Equal(t, []string{"start", "stop"}, fwd.phases)
}

func TestSupervisor_Run_DispatchesCapabilityRPC(t *testing.T) {
	script := `
read -r _
echo '{"kind":"rpc","rpcId":"1","method":"clipboard","params":{"action":"read"}}'
read -r reply
echo "$reply" 1>&2
echo '{"kind":"result","value":1}'
`
	authority := principal.NewAuthority(nil, nil)
	p := principal.Principal{Type: principal.TypeScript, ID: "s1"}
	yes := true
	authority.Grant(p, principal.Update{Clipboard: &yes})
	snap := authority.GetSnapshot(p)

	router := NewCapabilityRouter(authority, p, Adapters{
		Clipboard: func(ctx context.Context, params ClipboardParams) (string, error) {
			return "clipboard contents", nil
		},
	})
	sup := NewSupervisor(scriptRunner(script), nil, router)

	result, err := sup.Run(context.Background(), RunRequest{
		Principal:          p,
		LanguageFlavor:     "javascript",
		PermissionSnapshot: snap,
		TimeoutMs:          2000,
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
}

func TestShellRunnerFunc_IsRunner(t *testing.T) {
	var r Runner = ShellRunnerFunc(func(ctx context.Context, flavor string) (*exec.Cmd, error) {
		return nil, fmt.Errorf("flavor %s", flavor)
	})
	_, err := r.Command(context.Background(), "python")
	require.Error(t, err)
}

func TestRun_HonorsContextCancellation(t *testing.T) {
	script := `read -r _; sleep 5; echo '{"kind":"result","value":1}'`
	sup := NewSupervisor(scriptRunner(script), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := sup.Run(ctx, RunRequest{
		Principal:      principal.Principal{Type: principal.TypeScript, ID: "s1"},
		LanguageFlavor: "javascript",
		TimeoutMs:      10000,
	})
	require.Error(t, err)
}
