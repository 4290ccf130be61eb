package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cellwarden/cellwarden/pkg/principal"
)

// Runner builds the *exec.Cmd used to launch one worker process for a
// run. Swapping a real JavaScript or Python interpreter in happens by
// providing a different Runner; supervisor logic never changes.
type Runner interface {
	Command(ctx context.Context, flavor string) (*exec.Cmd, error)
}

// ShellRunnerFunc adapts a plain function to the Runner interface.
type ShellRunnerFunc func(ctx context.Context, flavor string) (*exec.Cmd, error)

// Command implements Runner.
func (f ShellRunnerFunc) Command(ctx context.Context, flavor string) (*exec.Cmd, error) {
	return f(ctx, flavor)
}

// NewWorkerScriptRunner builds a Runner that invokes workerPath (an
// executable or script) with the language flavor as its sole argument,
// launched through the platform shell (sh -c, or cmd /c on Windows).
func NewWorkerScriptRunner(workerPath string) Runner {
	return ShellRunnerFunc(func(ctx context.Context, flavor string) (*exec.Cmd, error) {
		cmd := shellCommandContext(ctx, fmt.Sprintf("%s %s", workerPath, flavor))
		setSysProcAttr(cmd)
		return cmd, nil
	})
}

// RunRequest describes one sandboxed execution.
type RunRequest struct {
	Principal          principal.Principal
	LanguageFlavor     string
	Source             string
	PermissionSnapshot principal.Snapshot
	TimeoutMs          int64
	MemoryMB           int64
	MaxOutputBytes     int64
	Label              string
}

// RunResult is the outcome of a settled run.
type RunResult struct {
	OK       bool
	Value    json.RawMessage
	Stdout   string
	Stderr   string
	ErrKind  string
	ErrMsg   string
	Duration time.Duration
}

// AuditForwarder receives audit payloads emitted by a worker and run
// lifecycle events the supervisor itself raises.
type AuditForwarder interface {
	ForwardWorkerAudit(label string, payload json.RawMessage)
	RunLifecycle(label, phase string)
}

// CapabilityDispatcher evaluates an RPC capability call issued by a
// worker and returns the raw JSON result or an error.
type CapabilityDispatcher interface {
	Dispatch(ctx context.Context, snapshot principal.Snapshot, method string, params json.RawMessage) (json.RawMessage, error)
}

// Supervisor owns the lifecycle of sandboxed worker processes.
type Supervisor struct {
	Runner     Runner
	Audit      AuditForwarder
	Capability CapabilityDispatcher
}

// NewSupervisor builds a Supervisor. audit and capability may be nil
// for callers that don't need lifecycle forwarding or RPC capability
// calls (e.g. pure compute runs).
func NewSupervisor(runner Runner, audit AuditForwarder, capability CapabilityDispatcher) *Supervisor {
	return &Supervisor{Runner: runner, Audit: audit, Capability: capability}
}

type settlement struct {
	once   sync.Once
	result RunResult
	err    error
}

func (s *settlement) settle(result RunResult, err error) {
	s.once.Do(func() {
		s.result = result
		s.err = err
	})
}

// Run spawns one worker process, drives its wire protocol to
// completion, and returns exactly one settlement: either a successful
// RunResult or a typed error.
func (sup *Supervisor) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	label := req.Label
	if label == "" {
		label = "sandbox.run"
	}
	sup.lifecycle(label, "start")

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, err := sup.Runner.Command(runCtx, req.LanguageFlavor)
	if err != nil {
		return RunResult{}, &TypedError{Kind: "runtime_error", Message: err.Error()}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return RunResult{}, &TypedError{Kind: "runtime_error", Message: err.Error()}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{}, &TypedError{Kind: "runtime_error", Message: err.Error()}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return RunResult{}, &TypedError{Kind: "runtime_error", Message: err.Error()}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RunResult{}, &TypedError{Kind: "runtime_error", Message: err.Error()}
	}

	snapRaw, _ := json.Marshal(req.PermissionSnapshot)
	initial := Message{
		Kind: KindRun,
		Run: &RunPayload{
			PrincipalType:      string(req.Principal.Type),
			PrincipalID:        req.Principal.ID,
			LanguageFlavor:     req.LanguageFlavor,
			Source:             req.Source,
			PermissionSnapshot: snapRaw,
			TimeoutMs:          req.TimeoutMs,
			MemoryMB:           req.MemoryMB,
			MaxOutputBytes:     req.MaxOutputBytes,
			Label:              label,
		},
	}
	enc := json.NewEncoder(stdin)
	if err := enc.Encode(initial); err != nil {
		_ = cmd.Process.Kill()
		return RunResult{}, &TypedError{Kind: "runtime_error", Message: err.Error()}
	}

	set := &settlement{}
	var outMu sync.Mutex
	var stdoutBuf, stderrBuf []byte
	outputBudget := req.MaxOutputBytes
	if outputBudget <= 0 {
		outputBudget = 10 * 1024 * 1024
	}
	var outputUsed int64

	appendOutput := func(stream OutputStream, text string) bool {
		outMu.Lock()
		defer outMu.Unlock()
		if stream == StreamStdout {
			stdoutBuf = append(stdoutBuf, text...)
		} else {
			stderrBuf = append(stderrBuf, text...)
		}
		outputUsed += int64(len(text))
		return outputUsed > outputBudget
	}

	var eg errgroup.Group
	eg.Go(func() error {
		drainPassthrough(stderr, func(line string) {
			if appendOutput(StreamStderr, line+"\n") {
				_ = cmd.Process.Kill()
				set.settle(RunResult{}, &TypedError{Kind: "sandbox_output_limit", Message: "output budget exceeded"})
			}
		})
		return nil
	})
	eg.Go(func() error {
		sup.readFrames(runCtx, stdout, stdin, req, appendOutput, set, cmd)
		return nil
	})

	_ = eg.Wait()
	waitErr := cmd.Wait()
	sup.lifecycle(label, "stop")

	if set.err != nil {
		transcript := RunResult{Stdout: string(stdoutBuf), Stderr: string(stderrBuf), Duration: time.Since(start)}
		return transcript, set.err
	}
	if set.result.OK || set.result.Value != nil {
		result := set.result
		result.Stdout = string(stdoutBuf)
		result.Stderr = string(stderrBuf)
		result.Duration = time.Since(start)
		return result, nil
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return RunResult{}, &TypedError{Kind: "sandbox_timeout", Message: fmt.Sprintf("run exceeded %s", timeout)}
	}
	if waitErr != nil {
		return RunResult{}, &TypedError{Kind: "sandbox_worker_exit", Message: waitErr.Error()}
	}
	return RunResult{}, &TypedError{Kind: "sandbox_worker_exit", Message: "worker exited without settling"}
}

func (sup *Supervisor) readFrames(
	ctx context.Context,
	r io.Reader,
	w io.Writer,
	req RunRequest,
	appendOutput func(OutputStream, string) bool,
	set *settlement,
	cmd *exec.Cmd,
) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		switch msg.Kind {
		case KindAudit:
			if sup.Audit != nil {
				sup.Audit.ForwardWorkerAudit(req.Label, msg.Audit)
			}
		case KindOutput:
			if appendOutput(msg.Stream, msg.Text) {
				_ = cmd.Process.Kill()
				set.settle(RunResult{}, &TypedError{Kind: "sandbox_output_limit", Message: "output budget exceeded"})
				return
			}
		case KindLimit:
			_ = cmd.Process.Kill()
			set.settle(RunResult{}, &TypedError{Kind: "sandbox_memory_limit", Message: fmt.Sprintf("memory usage %.1fMB exceeded budget", msg.UsedMB)})
			return
		case KindResult:
			set.settle(RunResult{OK: true, Value: msg.Value}, nil)
			return
		case KindError:
			set.settle(RunResult{}, &TypedError{Kind: msg.ErrorKind, Message: msg.ErrorMessage})
			return
		case KindRPC:
			sup.handleRPC(ctx, req.PermissionSnapshot, msg, w)
		}
	}
}

func (sup *Supervisor) handleRPC(ctx context.Context, snapshot principal.Snapshot, msg Message, w io.Writer) {
	if sup.Capability == nil || w == nil {
		return
	}
	value, err := sup.Capability.Dispatch(ctx, snapshot, msg.Method, msg.Params)
	reply := Message{Kind: KindRPCResult, RPCID: msg.RPCID, RPCResult: value}
	if err != nil {
		reply = Message{Kind: KindRPCError, RPCID: msg.RPCID, RPCError: err.Error()}
	}
	encoded, encErr := json.Marshal(reply)
	if encErr != nil {
		return
	}
	_, _ = w.Write(append(encoded, '\n'))
}

func drainPassthrough(r io.Reader, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
}

func (sup *Supervisor) lifecycle(label, phase string) {
	if sup.Audit != nil {
		sup.Audit.RunLifecycle(label, phase)
	}
}

// TypedError is a settlement failure with a stable, machine-checkable
// kind, mirroring how the worker's own error messages are tagged.
type TypedError struct {
	Kind    string
	Message string
}

func (e *TypedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
