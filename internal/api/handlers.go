package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "expiry-reminders/internal/common/errors"
	"expiry-reminders/internal/common/validation"
	"expiry-reminders/internal/models"
	"expiry-reminders/internal/reminder"
	"expiry-reminders/internal/reporting"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
	maxBodyBytes    = 1 << 20
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not_ready", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	date, err := s.dateParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	items, err := s.store.ListItems(r.Context(), date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if items == nil {
		items = []models.ItemView{}
	}
	reminder.AnnotateNext(items, date)
	writeJSON(w, http.StatusOK, map[string]interface{}{"date": date.Format(models.DateLayout), "items": items})
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	in, err := validation.DecodeNewItem(body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.store.CreateItem(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("item registered", map[string]interface{}{"itemId": id, "recipients": len(in.RecipientIDs)})
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

func (s *Server) listLog(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, apperrors.NewInvalidInputError("limit must be a positive integer"))
			return
		}
		limit = min(n, maxLogLimit)
	}

	entries, err := s.store.ListLogEntries(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.LogView{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) logSummary(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			s.writeError(w, apperrors.NewInvalidInputError("since must be YYYY-MM-DD"))
			return
		}
		since = d
	}

	sum, err := s.store.LogSummary(r.Context(), since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) searchLog(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		s.writeError(w, apperrors.NewResourceNotFoundError("api", "log search requires the Elasticsearch mirror"))
		return
	}

	q := r.URL.Query()
	f := reporting.Filter{
		Channel: models.ChannelName(q.Get("channel")),
		Status:  models.LogStatus(q.Get("status")),
		BatchID: q.Get("batchId"),
	}
	if raw := q.Get("itemId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, apperrors.NewInvalidInputError("itemId must be an integer"))
			return
		}
		f.ItemID = id
	}
	if raw := q.Get("since"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			s.writeError(w, apperrors.NewInvalidInputError("since must be YYYY-MM-DD"))
			return
		}
		f.Since = d
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"from", &f.From}, {"size", &f.Size}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, apperrors.NewInvalidInputError(p.name+" must be a non-negative integer"))
			return
		}
		*p.dst = n
	}

	res, err := s.searcher.Search(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) due(w http.ResponseWriter, r *http.Request) {
	date, err := s.dateParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	plan, err := s.runner.Plan(r.Context(), date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":          date.Format(models.DateLayout),
		"outcomes":      plan.Outcomes,
		"due":           plan.Due,
		"misconfigured": plan.Misconfigured,
		"missed":        plan.Missed,
		"skipped":       plan.Skipped,
	})
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	date, err := s.dateParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dryRun"))

	if !s.runMu.TryLock() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a batch run is already in progress"})
		return
	}
	defer s.runMu.Unlock()

	// The batch outlives a dropped client connection.
	ctx := context.WithoutCancel(r.Context())
	report, err := s.runner.Run(ctx, reminder.RunOptions{Date: date, DryRun: dryRun})
	if err != nil {
		status, _ := statusFor(err)
		writeJSON(w, status, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) dateParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return s.runner.Today(), nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperrors.NewInvalidInputError("date must be YYYY-MM-DD")
	}
	return d, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func statusFor(err error) (int, *apperrors.StandardError) {
	se := apperrors.Normalize(err)
	switch {
	case apperrors.IsValidationError(se):
		if se.Code == apperrors.ErrCodeReferenceNotFound {
			return http.StatusUnprocessableEntity, se
		}
		return http.StatusBadRequest, se
	case se.Code == apperrors.ErrCodeNotFound:
		return http.StatusNotFound, se
	case apperrors.IsDataStoreError(se):
		return http.StatusServiceUnavailable, se
	case se.Code == apperrors.ErrCodeExternalService:
		return http.StatusBadGateway, se
	default:
		return http.StatusInternalServerError, se
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, se := statusFor(err)
	if status >= 500 {
		s.logger.Error("request failed", map[string]interface{}{"error": err, "code": string(se.Code)})
	}
	writeJSON(w, status, errorBody{Code: string(se.Code), Message: se.Message, Details: se.Details})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
