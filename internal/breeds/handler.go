package breeds

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"catapis/internal/httputil"
	"catapis/internal/logging"
)

// Handler contains HTTP handlers for breed lookup endpoints
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles listing all breeds
// @Summary      List all breeds
// @Description  Proxy the full breed catalogue from the upstream provider
// @Tags         breeds
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} object
// @Failure      401 {object} httputil.ErrorResponse "Missing or invalid bearer token"
// @Failure      502 {object} httputil.ErrorResponse "Upstream provider failure"
// @Router       /breeds [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	list, err := h.service.List(r.Context())
	if err != nil {
		logger.Error("breed listing failed", "error", err.Error())
		httputil.RespondError(w, "error fetching breeds", http.StatusBadGateway)
		return
	}

	httputil.RespondJSON(w, list, http.StatusOK)
}

// Search handles breed search
// @Summary      Search breeds
// @Description  Search by name/code. With attach_image=1 the upstream attaches a reference image object.
// @Tags         breeds
// @Produce      json
// @Security     BearerAuth
// @Param        q query string false "Search term (name/code), e.g. sib"
// @Param        attach_image query int false "Attach reference image (0/1)"
// @Success      200 {array} object
// @Failure      400 {object} httputil.ErrorResponse "attach_image must be 0 or 1"
// @Failure      401 {object} httputil.ErrorResponse "Missing or invalid bearer token"
// @Failure      502 {object} httputil.ErrorResponse "Upstream provider failure"
// @Router       /breeds/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	query := SearchQuery{Q: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("attach_image"); raw != "" {
		switch raw {
		case "0":
			v := 0
			query.AttachImage = &v
		case "1":
			v := 1
			query.AttachImage = &v
		default:
			httputil.RespondValidationError(w, []string{"attach_image must be 0 or 1"})
			return
		}
	}

	list, err := h.service.Search(r.Context(), query)
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) {
			httputil.RespondError(w, "invalid search query", http.StatusBadRequest)
			return
		}
		logger.Error("breed search failed", "error", err.Error())
		httputil.RespondError(w, "error searching breeds", http.StatusBadGateway)
		return
	}

	httputil.RespondJSON(w, list, http.StatusOK)
}

// GetByID handles fetching a single breed
// @Summary      Get a breed by ID
// @Description  Look a breed up by its short id, e.g. abys, sibe, asho
// @Tags         breeds
// @Produce      json
// @Security     BearerAuth
// @Param        breed_id path string true "Breed ID"
// @Success      200 {object} object
// @Failure      401 {object} httputil.ErrorResponse "Missing or invalid bearer token"
// @Failure      404 {object} httputil.ErrorResponse "Breed not found"
// @Failure      502 {object} httputil.ErrorResponse "Upstream provider failure"
// @Router       /breeds/{breed_id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	breedID := chi.URLParam(r, "breed_id")

	breed, err := h.service.GetByID(r.Context(), breedID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.RespondError(w, "breed not found", http.StatusNotFound)
			return
		}
		logger.Error("breed lookup failed", "breed_id", breedID, "error", err.Error())
		httputil.RespondError(w, "error fetching breed", http.StatusBadGateway)
		return
	}

	httputil.RespondJSON(w, breed, http.StatusOK)
}
