package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"donor-impact-api/internal/database"
	"donor-impact-api/internal/logging"
	"donor-impact-api/internal/models"
	"donor-impact-api/internal/service"
	"donor-impact-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20,
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
	}
}

// Routes mounts the donor impact endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/achievements/catalog", h.GetAchievementCatalog)
	r.Post("/fundraisers", h.CreateFundraiser)
	r.Post("/fundraisers/{fundraiser_id}/donations", h.CreateFundraiserDonation)

	r.Route("/donors/{donor_id}", func(r chi.Router) {
		r.Post("/donations", h.CreateDonation)
		r.Get("/goals", h.GetGoals)
		r.Put("/goals/{period}", h.UpdateGoal)
		r.Get("/dashboard", h.GetDashboard)
		r.Get("/achievements", h.GetAchievements)
	})
}

// CreateDonation handles POST /donors/{donor_id}/donations
func (h *Handler) CreateDonation(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDonationRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, inserted, err := h.service.RecordDonation(r.Context(), models.DirectDonation{
		ID:           validation.SanitizeString(req.ID),
		DonorID:      validation.SanitizeString(chi.URLParam(r, "donor_id")),
		DonationType: validation.SanitizeString(req.DonationType),
		Amount:       req.Amount,
		OrphanageID:  validation.SanitizeString(req.OrphanageID),
		Timestamp:    req.Timestamp,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, createdStatus(inserted), d)
}

// CreateFundraiser handles POST /fundraisers
func (h *Handler) CreateFundraiser(w http.ResponseWriter, r *http.Request) {
	var req models.Fundraiser
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = validation.SanitizeString(req.ID)
	req.OrphanageID = validation.SanitizeString(req.OrphanageID)

	f, err := h.service.CreateFundraiser(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, f)
}

// CreateFundraiserDonation handles POST /fundraisers/{fundraiser_id}/donations
func (h *Handler) CreateFundraiserDonation(w http.ResponseWriter, r *http.Request) {
	var req models.CreateFundraiserDonationRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, inserted, err := h.service.RecordFundraiserDonation(r.Context(), models.FundraiserDonation{
		ID:           validation.SanitizeString(req.ID),
		DonorID:      validation.SanitizeString(req.DonorID),
		FundraiserID: validation.SanitizeString(chi.URLParam(r, "fundraiser_id")),
		Type:         validation.SanitizeString(req.Type),
		Amount:       req.Amount,
		Timestamp:    req.Timestamp,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, createdStatus(inserted), d)
}

// GetGoals handles GET /donors/{donor_id}/goals
func (h *Handler) GetGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.service.GetGoals(r.Context(), validation.SanitizeString(chi.URLParam(r, "donor_id")))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, goals)
}

// UpdateGoal handles PUT /donors/{donor_id}/goals/{period}
func (h *Handler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateGoalRequest
	if !h.decode(w, r, &req) {
		return
	}

	donorID := validation.SanitizeString(chi.URLParam(r, "donor_id"))
	period := models.GoalPeriod(validation.SanitizeString(chi.URLParam(r, "period")))

	goal, err := h.service.UpdateGoal(r.Context(), donorID, period, req.TargetAmount)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, goal)
}

// GetDashboard handles GET /donors/{donor_id}/dashboard
//
// The optional now query parameter (RFC3339) evaluates the dashboard as of
// that instant and bypasses the cache.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	donorID := validation.SanitizeString(chi.URLParam(r, "donor_id"))

	var now time.Time
	if nowParam := r.URL.Query().Get("now"); nowParam != "" {
		parsed, err := validation.ValidateTimeString(validation.SanitizeString(nowParam))
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid 'now' parameter, must be RFC3339 format")
			return
		}
		now = parsed
	}

	dash, err := h.service.Dashboard(r.Context(), donorID, now)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, dash)
}

// GetAchievements handles GET /donors/{donor_id}/achievements
func (h *Handler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	achievements, err := h.service.Achievements(r.Context(), validation.SanitizeString(chi.URLParam(r, "donor_id")))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if achievements == nil {
		achievements = []models.Achievement{}
	}
	h.respondJSON(w, http.StatusOK, achievements)
}

// GetAchievementCatalog handles GET /achievements/catalog
func (h *Handler) GetAchievementCatalog(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.service.AchievementCatalog())
}

// decode reads a size-limited JSON body into dst. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			h.respondError(w, http.StatusBadRequest, "request body is required")
		case errors.As(err, &maxErr):
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		}
		return false
	}
	return true
}

// respondServiceError maps service errors onto HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, database.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUnlockPersistence):
		w.Header().Set("Retry-After", "1")
		h.respondError(w, http.StatusServiceUnavailable, service.ErrUnlockPersistence.Error())
	default:
		logging.FromContext(r.Context()).Errorw("Request failed", "path", r.URL.Path, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func createdStatus(inserted bool) int {
	if inserted {
		return http.StatusCreated
	}
	return http.StatusOK
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
