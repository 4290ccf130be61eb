package sheettool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cellwarden/cellwarden/pkg/sheet"
	"github.com/cellwarden/cellwarden/pkg/telemetry"
)

// Executor is the function signature tools and middleware compose
// against.
type Executor func(ec *ExecutionContext) (*Result, error)

// Middleware wraps an Executor with additional behavior. Chains
// compose outermost-first, mirroring the teacher's tool-middleware
// idiom.
type Middleware func(next Executor) Executor

// Chain composes middlewares so the first one listed runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(final Executor) Executor {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Registry holds the fixed tool catalogue and the pivot registry the
// mutating tools refresh against.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	chain  Middleware
	pivots *PivotRegistry

	API     sheet.SpreadsheetApi
	Config  ExecutorConfig
	Metrics *telemetry.Metrics
}

// NewRegistry builds a Registry with the standard middleware chain
// (validation -> budget -> DLP -> telemetry -> execution) and the full
// built-in catalogue registered.
func NewRegistry(api sheet.SpreadsheetApi, cfg ExecutorConfig, metrics *telemetry.Metrics) *Registry {
	r := &Registry{
		tools:   map[string]Tool{},
		pivots:  NewPivotRegistry(),
		API:     api,
		Config:  cfg,
		Metrics: metrics,
	}
	r.chain = Chain(
		validationMiddleware(),
		budgetMiddleware(),
		dlpMiddleware(),
		telemetryMiddleware(metrics),
	)
	for _, t := range builtinTools(r.pivots) {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// Execute runs name through the middleware chain and, for tools whose
// written range intersects a registered pivot's source, refreshes that
// pivot afterward.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (*Result, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("sheettool: unknown tool %q", name)
	}

	started := time.Now()
	ec := &ExecutionContext{
		Context:   ctx,
		ToolName:  name,
		Params:    params,
		StartTime: started,
		Metadata:  map[string]any{},
		API:       r.API,
		Config:    r.Config,
	}

	exec := r.chain(func(ec *ExecutionContext) (*Result, error) {
		return tool.Execute(ec.Context, ec)
	})
	result, err := exec(ec)

	if result != nil && result.OK {
		if written, ok := ec.Metadata["written_range"].(sheet.Range); ok {
			r.pivots.RefreshAffectedBy(r.API, written, r.Config.MaxToolRangeCells)
		}
	}

	if r.Config.DLP != nil && r.Config.DLP.AuditLogger != nil {
		r.Config.DLP.AuditLogger.LogToolCall(buildAudit(name, params, result))
	}

	return result, err
}

// Pivots exposes the executor-local pivot registry for inspection in
// tests and diagnostics.
func (r *Registry) Pivots() *PivotRegistry { return r.pivots }
