package httpapi

import (
	"net/http"
	"time"

	"github.com/blocksense-network/agentfs/pkg/core"
)

// Handlers bundles the read-only introspection endpoints against one
// *core.Instance, mirroring the teacher's HealthHandler/registry coupling.
type Handlers struct {
	core *core.Instance
}

// NewHandlers constructs Handlers bound to inst.
func NewHandlers(inst *core.Instance) *Handlers {
	return &Handlers{core: inst}
}

// Liveness handles GET /healthz: the process is up and the core wired.
func (h *Handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(map[string]string{"service": "agentfs"}))
}

// Readiness handles GET /readyz: reports the backstore's mode and
// capabilities, or 503 when no core is attached.
func (h *Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.core == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("core not initialized"))
		return
	}
	caps := h.core.BackstoreCapabilities()
	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{
		"backstore_mode": h.core.BackstoreMode().String(),
		"capabilities":   caps,
	}))
}

type snapshotView struct {
	ID           string    `json:"id"`
	Label        string    `json:"label,omitempty"`
	ParentBranch string    `json:"parent_branch"`
	CreatedAt    time.Time `json:"created_at"`
}

// Snapshots handles GET /v1/snapshots: every live, sealed snapshot
// (spec.md §4.5 snapshot_list).
func (h *Handlers) Snapshots(w http.ResponseWriter, r *http.Request) {
	list := h.core.SnapshotList()
	out := make([]snapshotView, 0, len(list))
	for _, s := range list {
		out = append(out, snapshotView{
			ID: s.ID.String(), Label: s.Label,
			ParentBranch: s.ParentBranch.String(), CreatedAt: s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, okResponse(out))
}

type branchView struct {
	ID           string    `json:"id"`
	Label        string    `json:"label,omitempty"`
	FromSnapshot string    `json:"from_snapshot,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	BoundPids    []uint64  `json:"bound_pids,omitempty"`
}

// Branches handles GET /v1/branches: every live branch and its
// process_bindings (spec.md §3 Entities).
func (h *Handlers) Branches(w http.ResponseWriter, r *http.Request) {
	list := h.core.BranchList()
	out := make([]branchView, 0, len(list))
	for _, b := range list {
		v := branchView{ID: b.ID.String(), Label: b.Label, CreatedAt: b.CreatedAt, BoundPids: b.Bound}
		if !b.FromSnap.IsZero() {
			v.FromSnapshot = b.FromSnap.String()
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, okResponse(out))
}

// ContentStats handles GET /v1/content/stats: the Content Store's aggregate
// chunk accounting (spec.md §4.1). The binary protocol has no operation
// that reports these numbers; BackstoreStatus returns only mode and
// capabilities.
func (h *Handlers) ContentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.core.ContentStats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(stats))
}
