package server

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tradepulse/datahub/internal/domain"
	"github.com/tradepulse/datahub/internal/events"
	"github.com/tradepulse/datahub/internal/export"
	"github.com/tradepulse/datahub/internal/modules/indicators"
)

// framePayload is the wire shape of a dataset payload.
type framePayload struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func toPayload(frame *domain.Frame) framePayload {
	return framePayload{Columns: frame.Columns, Rows: frame.Rows}
}

func framesToPayload(frames map[string]*domain.Frame) map[string]framePayload {
	out := make(map[string]framePayload, len(frames))
	for key, frame := range frames {
		out[key] = toPayload(frame)
	}
	return out
}

// registerRequest is the JSON upload body. Rows arrive as parsed tabular
// data; cells in a Date column are normalized to time.Time.
type registerRequest struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"datasets": s.container.Store.List(),
		"stats":    s.container.Store.Stats(),
	})
}

func (s *Server) handleRegisterDataset(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body: " + err.Error()})
		return
	}

	kind, err := parseKind(req.Kind)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	frame := domain.NewFrame(req.Columns...)
	dateIdx := frame.ColumnIndex(domain.ColDate)
	for _, row := range req.Rows {
		if dateIdx >= 0 && dateIdx < len(row) {
			row[dateIdx] = coerceDate(row[dateIdx])
		}
		if err := frame.AppendRow(row...); err != nil {
			s.writeError(w, &domain.InvalidDatasetError{Reason: err.Error()})
			return
		}
	}

	id, err := s.container.Store.Register(req.Name, frame, kind)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(events.DatasetRegistered, id)
	meta, _ := s.container.Store.Meta(id)
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": id, "meta": meta})
}

func (s *Server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing name query parameter"})
		return
	}

	records, err := csv.NewReader(r.Body).ReadAll()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid CSV body: " + err.Error()})
		return
	}
	if len(records) < 1 {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "CSV body has no header row"})
		return
	}

	frame := domain.NewFrame(records[0]...)
	dateIdx := frame.ColumnIndex(domain.ColDate)
	for _, record := range records[1:] {
		row := make([]any, len(record))
		for i, cell := range record {
			if i == dateIdx {
				row[i] = coerceDate(cell)
				continue
			}
			row[i] = coerceCell(cell)
		}
		if err := frame.AppendRow(row...); err != nil {
			s.writeError(w, &domain.InvalidDatasetError{Reason: err.Error()})
			return
		}
	}

	id, err := s.container.Store.Register(name, frame, domain.KindUploaded)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(events.DatasetRegistered, id)
	meta, _ := s.container.Store.Meta(id)
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": id, "meta": meta})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	frame, meta, err := s.container.Store.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"meta": meta, "data": toPayload(frame)})
}

func (s *Server) handleUpdateDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body: " + err.Error()})
		return
	}

	frame := domain.NewFrame(req.Columns...)
	dateIdx := frame.ColumnIndex(domain.ColDate)
	for _, row := range req.Rows {
		if dateIdx >= 0 && dateIdx < len(row) {
			row[dateIdx] = coerceDate(row[dateIdx])
		}
		if err := frame.AppendRow(row...); err != nil {
			s.writeError(w, &domain.InvalidDatasetError{Reason: err.Error()})
			return
		}
	}

	if err := s.container.Store.Update(id, frame); err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(events.DatasetUpdated, id)
	meta, _ := s.container.Store.Meta(id)
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "meta": meta})
}

func (s *Server) handleRemoveDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.container.Store.Remove(id) {
		s.writeError(w, &domain.DatasetNotFoundError{ID: id})
		return
	}

	s.publish(events.DatasetRemoved, id)
	s.writeJSON(w, http.StatusOK, map[string]any{"removed": id})
}

func (s *Server) handleDescribeDataset(w http.ResponseWriter, r *http.Request) {
	desc, err := s.container.Analytics.Describe(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, desc)
}

func (s *Server) handleExportDataset(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	path, err := s.container.Exporter.Export(chi.URLParam(r, "id"), format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"path": path, "format": format})
}

// deriveRequest selects an indicator derivation.
type deriveRequest struct {
	Indicator string            `json:"indicator"`
	Params    indicators.Params `json:"params"`
}

func (s *Server) handleDeriveIndicator(w http.ResponseWriter, r *http.Request) {
	var req deriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body: " + err.Error()})
		return
	}

	indicator, err := indicators.ParseIndicator(req.Indicator)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	id, meta, err := s.container.Indicators.Derive(chi.URLParam(r, "id"), indicator, req.Params)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.publish(events.DatasetRegistered, id)
	s.writeJSON(w, http.StatusCreated, map[string]any{"id": id, "meta": meta})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sources":    s.container.Manager.Sources(),
		"registered": len(s.container.Manager.Sources()),
	})
}

// fetchRequest is the API data fetch body. Start/End use YYYY-MM-DD; both
// empty means the provider's default period.
type fetchRequest struct {
	Symbols    []string `json:"symbols"`
	Source     string   `json:"source"`
	Timeframe  string   `json:"timeframe"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	DatasetIDs []string `json:"dataset_ids"`
}

func (r fetchRequest) window() (domain.FetchRange, error) {
	var window domain.FetchRange
	if r.Start != "" {
		start, err := time.Parse("2006-01-02", r.Start)
		if err != nil {
			return window, fmt.Errorf("invalid start date: %s", r.Start)
		}
		window.Start = start
	}
	if r.End != "" {
		end, err := time.Parse("2006-01-02", r.End)
		if err != nil {
			return window, fmt.Errorf("invalid end date: %s", r.End)
		}
		window.End = end
	}
	return window, nil
}

func (r fetchRequest) timeframe() (domain.Timeframe, error) {
	if r.Timeframe == "" {
		return domain.Timeframe1Day, nil
	}
	return domain.ParseTimeframe(r.Timeframe)
}

func (s *Server) handleFetchAPIData(w http.ResponseWriter, r *http.Request) {
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
	window, err := req.window()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	frames, err := s.container.Manager.GetAPIData(r.Context(), req.Symbols, source, timeframe, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"data": framesToPayload(frames)})
}

func (s *Server) handleFetchCombined(w http.ResponseWriter, r *http.Request) {
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

	frames, err := s.container.Manager.GetCombinedData(r.Context(), req.Symbols, req.DatasetIDs, source, timeframe)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"data": framesToPayload(frames)})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.container.Manager.CacheStats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.container.Manager.ClearCache(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (s *Server) handleBackupNow(w http.ResponseWriter, r *http.Request) {
	if s.container.Backup == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "backups are not configured"})
		return
	}

	archive, err := s.container.Backup.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"archive": archive})
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	if s.container.Backup == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "backups are not configured"})
		return
	}

	backups, err := s.container.Backup.ListBackups(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"backups": backups})
}

func (s *Server) publish(eventType events.EventType, datasetID string) {
	s.container.Bus.Publish(eventType, "api", map[string]any{"dataset_id": datasetID})
}

func parseKind(kind string) (domain.SourceKind, error) {
	switch kind {
	case "", string(domain.KindUploaded):
		return domain.KindUploaded, nil
	case string(domain.KindAPI):
		return domain.KindAPI, nil
	case string(domain.KindDerived):
		return domain.KindDerived, nil
	default:
		return "", fmt.Errorf("unknown dataset kind: %s", kind)
	}
}

// coerceDate normalizes Date cells from JSON/CSV input to time.Time. Values
// that fit neither format pass through unchanged.
func coerceDate(cell any) any {
	raw, ok := cell.(string)
	if !ok {
		return cell
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC()
	}
	if ts, err := time.Parse("2006-01-02", raw); err == nil {
		return ts
	}
	return cell
}

// coerceCell types a CSV cell: numbers become float64, everything else stays
// a string.
func coerceCell(cell string) any {
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v
	}
	return cell
}
