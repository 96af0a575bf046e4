package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/infrastructure/logger"
	"github.com/bnema/tunecast/internal/port"
	"github.com/bnema/tunecast/internal/service"
)

type TuneService interface {
	CreateBatch(ctx context.Context, userID int64, items []service.NewTune) ([]*domain.Tune, error)
	Get(ctx context.Context, id int64) (*domain.Tune, error)
	List(ctx context.Context, filter port.TuneFilter) ([]*domain.Tune, int, error)
	Update(ctx context.Context, id int64, item service.NewTune) (*domain.Tune, error)
	Delete(ctx context.Context, id int64) error
}

type FulfillService interface {
	FulfillNow(ctx context.Context, tuneID int64) error
}

type Handlers struct {
	tuneSvc    TuneService
	fulfillSvc FulfillService
	maxSizeMB  int
}

func NewHandlers(tuneSvc TuneService, fulfillSvc FulfillService, maxSizeMB int) *Handlers {
	return &Handlers{
		tuneSvc:    tuneSvc,
		fulfillSvc: fulfillSvc,
		maxSizeMB:  maxSizeMB,
	}
}

// tuneRequest is the intake DTO: artifacts travel base64-encoded inside the
// JSON body.
type tuneRequest struct {
	DueAt       *time.Time `json:"upload_date"`
	Title       string     `json:"video_title"`
	Description string     `json:"video_description"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	Privacy     string     `json:"privacy_status"`
	Embeddable  bool       `json:"embeddable"`
	License     string     `json:"license"`
	AudioName   string     `json:"audio_name"`
	AudioData   string     `json:"audio_data"`
	ImageName   string     `json:"image_name"`
	ImageData   string     `json:"image_data"`
}

func (req *tuneRequest) toNewTune() (service.NewTune, error) {
	audio, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		return service.NewTune{}, &domain.ValidationError{Field: "audio_data", Message: "invalid base64"}
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageData)
	if err != nil {
		return service.NewTune{}, &domain.ValidationError{Field: "image_data", Message: "invalid base64"}
	}
	return service.NewTune{
		DueAt:       req.DueAt,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		Privacy:     domain.PrivacyStatus(req.Privacy),
		Embeddable:  req.Embeddable,
		License:     req.License,
		Audio:       service.IncomingFile{Name: req.AudioName, Data: audio},
		Image:       service.IncomingFile{Name: req.ImageName, Data: image},
	}, nil
}

func (h *Handlers) CreateTunes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxSizeMB)*1024*1024)

		var req struct {
			Tunes []tuneRequest `json:"tunes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		items := make([]service.NewTune, 0, len(req.Tunes))
		for _, tr := range req.Tunes {
			item, err := tr.toNewTune()
			if err != nil {
				writeServiceError(w, err)
				return
			}
			items = append(items, item)
		}

		created, err := h.tuneSvc.CreateBatch(r.Context(), user.ID, items)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"tunes": created})
	}
}

func (h *Handlers) ListTunes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		q := r.URL.Query()
		filter := port.TuneFilter{UserID: &user.ID}
		if v := q.Get("page"); v != "" {
			filter.Page, _ = strconv.Atoi(v)
		}
		if v := q.Get("limit"); v != "" {
			filter.Limit, _ = strconv.Atoi(v)
		}
		if v := q.Get("executed"); v != "" {
			executed := v == "true" || v == "1"
			filter.Executed = &executed
		}
		if v := q.Get("before"); v != "" {
			before, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid before timestamp")
				return
			}
			filter.Before = &before
		}

		tunes, total, err := h.tuneSvc.List(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if tunes == nil {
			tunes = []*domain.Tune{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tunes": tunes,
			"total": total,
		})
	}
}

func (h *Handlers) GetTune() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tune, ok := h.ownedTune(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, tune)
	}
}

func (h *Handlers) UpdateTune() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tune, ok := h.ownedTune(w, r)
		if !ok {
			return
		}

		var req tuneRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		updated, err := h.tuneSvc.Update(r.Context(), tune.ID, service.NewTune{
			DueAt:       req.DueAt,
			Title:       req.Title,
			Description: req.Description,
			Category:    req.Category,
			Tags:        req.Tags,
			Privacy:     domain.PrivacyStatus(req.Privacy),
			Embeddable:  req.Embeddable,
			License:     req.License,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func (h *Handlers) DeleteTune() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tune, ok := h.ownedTune(w, r)
		if !ok {
			return
		}
		if err := h.tuneSvc.Delete(r.Context(), tune.ID); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// FulfillTune triggers an immediate fulfillment attempt, bypassing the due
// date. A user whose platform consent was revoked gets the consent URL back
// instead of an opaque error.
func (h *Handlers) FulfillTune() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tune, ok := h.ownedTune(w, r)
		if !ok {
			return
		}

		if err := h.fulfillSvc.FulfillNow(r.Context(), tune.ID); err != nil {
			var reauth *domain.ReauthRequiredError
			if errors.As(err, &reauth) {
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":       "reauthorization required",
					"consent_url": reauth.ConsentURL,
				})
				return
			}
			logger.Error.Printf("on-demand fulfillment for tune %d: %v", tune.ID, err)
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"executed": true})
	}
}

// ownedTune resolves the {id} path value and enforces that the caller owns
// the tune. Foreign tunes read as not found.
func (h *Handlers) ownedTune(w http.ResponseWriter, r *http.Request) (*domain.Tune, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tune id")
		return nil, false
	}

	tune, err := h.tuneSvc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	if tune.UserID != user.ID {
		writeError(w, http.StatusNotFound, "tune not found")
		return nil, false
	}
	return tune, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Message,
			"field": verr.Field,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "tune not found")
	case errors.Is(err, domain.ErrAlreadyExecuted):
		writeError(w, http.StatusConflict, "tune already executed")
	case errors.Is(err, domain.ErrDirMissing):
		writeError(w, http.StatusConflict, "tune artifacts missing on disk")
	default:
		logger.Error.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
