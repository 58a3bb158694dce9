package alttext

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/httpjson"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// Handler exposes the processor over HTTP
type Handler struct {
	proc *Processor
}

func NewHandler(proc *Processor) *Handler {
	return &Handler{proc: proc}
}

// StatsFilter reads the missing_alt_only and only_attached query flags
func StatsFilter(r *http.Request) (models.StatsFilter, error) {
	var filter models.StatsFilter
	for name, target := range map[string]*bool{
		"missing_alt_only": &filter.MissingAltOnly,
		"only_attached":    &filter.OnlyAttached,
	} {
		if v := r.URL.Query().Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return filter, apperrors.Validation("alttext.stats", "%s must be a boolean", name)
			}
			*target = b
		}
	}
	return filter, nil
}

// Stats serves GET /api/alttext/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	filter, err := StatsFilter(r)
	if err != nil {
		httpjson.Error(w, err)
		return
	}

	stats, err := h.proc.Stats(r.Context(), filter)
	if err != nil {
		httpjson.Error(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, stats)
}

// StartRun serves POST /api/alttext/runs
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req models.StartRunRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, err)
		return
	}

	resp, err := h.proc.StartRun(r.Context(), req)
	if err != nil {
		httpjson.Error(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, resp)
}

// ProcessBatch serves POST /api/alttext/runs/{id}/batch
func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, err)
		return
	}

	resp, err := h.proc.ProcessBatch(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		httpjson.Error(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, resp)
}

// CancelRun serves POST /api/alttext/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.proc.CancelRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpjson.Error(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, run)
}

// GetRun serves GET /api/alttext/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.proc.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpjson.Error(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, run)
}
