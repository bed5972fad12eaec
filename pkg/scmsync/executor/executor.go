// Package executor implements C5: a job_type -> Handler registry that
// always runs a handler's output through the C2 contract validator before
// returning it, so a misbehaving handler can never escape the envelope
// contract.
package executor

import (
	"context"
	"fmt"

	"github.com/engramscm/engram-scm/internal/scmerrors"
	"github.com/engramscm/engram-scm/pkg/scmsync/result"
)

// Handler is the sole contract a sync implementation must satisfy, per
// spec §4.5: "Handler(repo_id, mode, payload) -> SyncResult".
type Handler func(ctx context.Context, repoID int64, mode string, payload map[string]any) result.SyncResult

// Executor is a stateless registry; construct one per process and share it
// across workers.
type Executor struct {
	handlers map[string]Handler
}

// New builds an executor from an explicit job_type -> Handler map, letting
// tests inject fakes in place of the real gitlab_commits/gitlab_mrs/svn
// handlers.
func New(handlers map[string]Handler) *Executor {
	h := make(map[string]Handler, len(handlers))
	for k, v := range handlers {
		h[k] = v
	}
	return &Executor{handlers: h}
}

// Register adds or replaces a handler after construction.
func (e *Executor) Register(jobType string, h Handler) {
	e.handlers[jobType] = h
}

// Execute dispatches to the registered handler for jobType and validates
// its result. An unknown job_type or a contract violation both come back
// as a failed SyncResult rather than a panic or bare error, since the
// queue needs a SyncResult either way to decide retry policy.
func (e *Executor) Execute(ctx context.Context, jobType string, repoID int64, mode string, payload map[string]any) result.SyncResult {
	h, ok := e.handlers[jobType]
	if !ok {
		return result.Failed(fmt.Sprintf("unknown job_type %q", jobType), scmerrors.CategoryUnknownJobType)
	}

	r := h(ctx, repoID, mode, payload)

	if err := r.Validate(); err != nil {
		return result.Failed(fmt.Sprintf("handler for %q violated result contract: %v", jobType, err), scmerrors.CategoryContract)
	}

	return r
}

// ExecuteFromJobDict is the worker-convenience entry point named in spec
// §4.5: it pulls repo_id/mode/payload out of a claimed job's raw fields so
// callers don't need to destructure it themselves.
func (e *Executor) ExecuteFromJobDict(ctx context.Context, jobType string, job map[string]any) result.SyncResult {
	repoID, _ := job["repo_id"].(int64)
	mode, _ := job["mode"].(string)
	payload, _ := job["payload"].(map[string]any)
	return e.Execute(ctx, jobType, repoID, mode, payload)
}
