package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tradepulse/datahub/internal/access"
	"github.com/tradepulse/datahub/internal/domain"
	"github.com/tradepulse/datahub/internal/events"
)

type moduleCtxKey struct{}

// moduleCtx resolves the {module} URL parameter against the configured
// module accesses. Unknown modules get a 404 before the handler runs.
func (s *Server) moduleCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "module")
		module := s.container.Module(name)
		if module == nil {
			s.writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown module: " + name})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), moduleCtxKey{}, module)))
	})
}

func moduleFrom(r *http.Request) *access.ModuleAccess {
	return r.Context().Value(moduleCtxKey{}).(*access.ModuleAccess)
}

func (s *Server) handleModuleDatasets(w http.ResponseWriter, r *http.Request) {
	module := moduleFrom(r)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"module":   module.Module(),
		"datasets": module.AvailableDatasets(),
	})
}

func (s *Server) handleModuleActiveData(w http.ResponseWriter, r *http.Request) {
	module := moduleFrom(r)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"module": module.Module(),
		"data":   framesToPayload(module.ActiveDatasets()),
	})
}

func (s *Server) handleModuleSummary(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, moduleFrom(r).DataSummary())
}

// activateRequest names one dataset.
type activateRequest struct {
	DatasetID string `json:"dataset_id"`
}

func (s *Server) handleModuleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body: " + err.Error()})
		return
	}

	module := moduleFrom(r)
	activated := module.ActivateDataset(req.DatasetID)
	if activated {
		s.container.Bus.Publish(events.DatasetActivated, module.Module(), map[string]any{
			"dataset_id": req.DatasetID,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"activated": activated})
}

func (s *Server) handleModuleDeactivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body: " + err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"deactivated": moduleFrom(r).DeactivateDataset(req.DatasetID),
	})
}

func (s *Server) handleModuleReset(w http.ResponseWriter, r *http.Request) {
	moduleFrom(r).Reset()
	s.writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

func (s *Server) handleModuleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body: " + err.Error()})
		return
	}

	source, err := domain.ParseSource(req.Source)
	if err != nil {
		s.writeError(w, err)
		return
	}

	timeframe, err := req.timeframe()
	if err != nil {
		s.writeError(w, err)
		return
	}

	module := moduleFrom(r)
	var frames map[string]*domain.Frame
	if len(req.DatasetIDs) > 0 {
		frames, err = module.GetCombinedData(r.Context(), req.Symbols, req.DatasetIDs, source, timeframe)
	} else {
		frames, err = module.GetAPIData(r.Context(), req.Symbols, source, timeframe)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"data": framesToPayload(frames)})
}
