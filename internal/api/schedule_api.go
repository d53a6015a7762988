package api

import (
	"net/http"

	"sessionbook/internal/metrics"
	"sessionbook/internal/model"
	"sessionbook/internal/schedule"
)

// ScheduleResponse is returned after a schedule replacement.
type ScheduleResponse struct {
	Schedule *model.ScheduleDefinition `json:"schedule"`
	Warnings []schedule.Warning        `json:"warnings"`
}

// GET /api/v1/provider/schedule
func (s *HTTPServer) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_schedule")

	provider, ok := providerID(w, r)
	if !ok {
		return
	}
	def, err := s.svc.Schedules.Get(r.Context(), provider)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// handleReplaceSchedule stores the caller's whole weekly schedule.
// PUT /api/v1/provider/schedule
func (s *HTTPServer) handleReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("replace_schedule")

	provider, ok := providerID(w, r)
	if !ok {
		return
	}
	var def model.ScheduleDefinition
	if !decodeJSON(w, r, &def) {
		return
	}

	warnings, err := s.svc.Schedules.Replace(r.Context(), provider, &def)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if warnings == nil {
		warnings = []schedule.Warning{}
	}

	s.log.Info().Str("provider_id", provider).Int("days", len(def.Days)).
		Int("warnings", len(warnings)).Msg("schedule replaced")
	writeJSON(w, http.StatusOK, ScheduleResponse{Schedule: &def, Warnings: warnings})
}

// handlePreviewSchedule expands a schedule into sessions without storing it.
// POST /api/v1/schedule/preview
func (s *HTTPServer) handlePreviewSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("preview_schedule")

	var def model.ScheduleDefinition
	if !decodeJSON(w, r, &def) {
		return
	}
	preview, err := schedule.Preview(&def)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if preview.Warnings == nil {
		preview.Warnings = []schedule.Warning{}
	}
	writeJSON(w, http.StatusOK, preview)
}
