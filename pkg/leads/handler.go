package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/config"
	"github.com/hanamal24/site-sync/pkg/metrics"
	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/utils"
)

// maxBodyBytes caps the size of a submitted form
const maxBodyBytes = 64 << 10

// RecordCreator creates records in the leads table. *airtable.Client implements it.
type RecordCreator interface {
	Configured() bool
	CreateRecord(ctx context.Context, table string, fields map[string]any) (string, error)
}

// Handler serves the lead submission endpoint
type Handler struct {
	creator  RecordCreator
	table    string
	fallback *FallbackStore
	origin   string
	now      func() time.Time
	log      *logrus.Entry
}

// NewHandler creates a Handler. creator may be nil, in which case every lead
// goes to the fallback file.
func NewHandler(creator RecordCreator, table string, cfg config.LeadsConfig, log *logrus.Entry) *Handler {
	origin := cfg.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	return &Handler{
		creator:  creator,
		table:    table,
		fallback: NewFallbackStore(cfg.FallbackPath),
		origin:   origin,
		now:      time.Now,
		log:      log.WithField("component", "leads"),
	}
}

// submitResponse is the success body
type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	LeadID  string `json:"leadId"`
	Status  string `json:"status"`
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", h.origin)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
		return
	}

	var lead Lead
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&lead); err != nil {
		metrics.ObserveLead("invalid")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON body"})
		return
	}
	if missing := lead.MissingFields(); len(missing) > 0 {
		metrics.ObserveLead("invalid")
		h.log.WithField("missing", missing).Info("Rejected lead with missing fields")
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":         "Missing required fields",
			"missingFields": missing,
		})
		return
	}

	id, status, err := h.Submit(r.Context(), lead)
	if err != nil {
		metrics.ObserveLead("error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Internal server error",
			"message": "lead could not be stored",
		})
		return
	}
	metrics.ObserveLead(status.String())

	if status == models.LeadStatusStored {
		writeJSON(w, http.StatusAccepted, submitResponse{
			Success: true,
			Message: "Lead received and queued for delivery",
			LeadID:  id,
			Status:  status.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Success: true,
		Message: "Lead submitted successfully",
		LeadID:  id,
		Status:  status.String(),
	})
}

// Submit forwards a validated lead to the records API, falling back to the
// local file when the API is not configured or the request fails. An error
// is returned only when neither destination accepted the lead.
func (h *Handler) Submit(ctx context.Context, lead Lead) (string, models.LeadStatus, error) {
	fields := lead.AirtableFields(h.now())

	reason := "records API not configured"
	if h.creator != nil && h.creator.Configured() {
		id, err := h.creator.CreateRecord(ctx, h.table, fields)
		if err == nil {
			h.log.WithField("lead_id", id).Info("Lead forwarded")
			return id, models.LeadStatusForwarded, nil
		}
		reason = err.Error()
		h.log.WithField("error_category", utils.CategorizeError(err)).
			Warnf("Forwarding lead failed, keeping it locally: %v", err)
	}

	id, err := h.fallback.Append(fields, reason, h.now().UTC())
	if err != nil {
		h.log.WithField("error_category", utils.CategorizeError(err)).
			Errorf("Lead lost, fallback write failed: %v", err)
		return "", "", err
	}
	h.log.WithFields(logrus.Fields{"lead_id": id, "path": h.fallback.Path()}).Info("Lead stored in fallback file")
	return id, models.LeadStatusStored, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
