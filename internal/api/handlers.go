package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/attractor-gallery/internal/apperr"
	"github.com/starford/attractor-gallery/internal/catalog"
	"github.com/starford/attractor-gallery/internal/codec"
	"github.com/starford/attractor-gallery/internal/curationservice"
	"github.com/starford/attractor-gallery/internal/models"
)

// RunLister reads recorded runs. catalog.DB implements it.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]catalog.Run, error)
	RunSelections(ctx context.Context, runID string) ([]catalog.RunSelection, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc  *curationservice.Service
	runs RunLister
	kind codec.Kind
}

// NewHandler creates a new Handler. runs may be nil when no catalog is
// configured; kind is the artifact compression used by the exporter.
func NewHandler(svc *curationservice.Service, runs RunLister, kind codec.Kind) *Handler {
	return &Handler{svc: svc, runs: runs, kind: kind}
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrNoSelection):
		writeError(w, http.StatusServiceUnavailable, "no selection yet")
	case errors.Is(err, apperr.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrStoreUnavailable):
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "record store unavailable")
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ListGroups handles GET /api/groups.
//
//	@Summary		List the groups of the latest selection
//	@Tags			selection
//	@Produce		json
//	@Success		200	{object}	GroupListResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/groups [get]
func (h *Handler) ListGroups(w http.ResponseWriter, _ *http.Request) {
	snap, err := h.svc.Latest()
	if err != nil {
		writeServiceError(w, "list groups", err)
		return
	}
	writeJSON(w, http.StatusOK, GroupListResponse{
		RunID:     snap.RunID,
		CuratedAt: snap.CuratedAt.Format(time.RFC3339),
		Policy:    snap.Result.Policy,
		TopN:      snap.Result.TopN,
		Groups:    snap.Groups(),
	})
}

// GetGroup handles GET /api/groups/{label}.
//
//	@Summary		Get the ranked table and final records of one group
//	@Tags			selection
//	@Produce		json
//	@Param			label	path		string	true	"Group label"
//	@Success		200		{object}	GroupDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/groups/{label} [get]
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	g, err := h.svc.Group(label)
	if err != nil {
		writeServiceError(w, "get group", err)
		return
	}
	writeJSON(w, http.StatusOK, groupDetail(g, h.kind))
}

// GetRecord handles GET /api/records/{id}.
//
//	@Summary		Get a selected record by hex id
//	@Tags			selection
//	@Produce		json
//	@Param			id			path		string	true	"Record id (hex)"
//	@Param			trajectory	query		bool	false	"Include trajectory points"
//	@Success		200			{object}	RecordDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	withTrajectory, _ := strconv.ParseBool(r.URL.Query().Get("trajectory"))

	sel, err := h.svc.Record(id)
	if err != nil {
		writeServiceError(w, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, recordDetail(sel, h.kind, withTrajectory))
}

// Curate handles POST /api/curate.
//
//	@Summary		Re-run curation and export
//	@Tags			selection
//	@Produce		json
//	@Success		200	{object}	CurateResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/curate [post]
func (h *Handler) Curate(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Curate(r.Context())
	if err != nil {
		writeServiceError(w, "curate", err)
		return
	}
	writeJSON(w, http.StatusOK, CurateResponse{
		RunID:      snap.RunID,
		Considered: snap.Result.Considered,
		Valid:      snap.Result.Valid,
		Rendered:   snap.Result.Rendered(),
		Groups:     snap.Groups(),
	})
}

// ListRuns handles GET /api/runs.
//
//	@Summary		List recorded curation runs, newest first
//	@Tags			runs
//	@Produce		json
//	@Param			limit	query		int	false	"Max runs"
//	@Success		200		{object}	RunListResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "run history not configured")
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeServiceError(w, "list runs", err)
		return
	}
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeServiceError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []catalog.Run{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// GetRun handles GET /api/runs/{id}.
//
//	@Summary		Get the ranked candidates of a recorded run
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run id"
//	@Success		200	{object}	map[string][]RunSelectionItem
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "run history not configured")
		return
	}
	runID := chi.URLParam(r, "id")
	sels, err := h.runs.RunSelections(r.Context(), runID)
	if err != nil {
		writeServiceError(w, "get run", err)
		return
	}
	if len(sels) == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	items := make([]RunSelectionItem, 0, len(sels))
	for _, s := range sels {
		items = append(items, RunSelectionItem{
			Group:  s.Group,
			Rank:   s.Rank,
			ID:     s.RecordID.Hex(),
			Score:  s.Score,
			Status: s.Status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     runID,
		"selections": items,
	})
}
