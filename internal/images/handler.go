package images

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"catapis/internal/httputil"
	"catapis/internal/logging"
)

// Handler contains the HTTP handler for image lookup
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetByBreed handles fetching images for a breed
// @Summary      Images by breed id
// @Description  Fetch images for a breed from the upstream provider. limit defaults to 5, size to med, order to RANDOM.
// @Tags         images
// @Produce      json
// @Security     BearerAuth
// @Param        breed_id query string true "Breed ID, e.g. abys"
// @Param        limit query int false "Number of images (1-25)"
// @Param        size query string false "thumb, small, med or full"
// @Param        mime_types query string false "Comma-separated mime types, e.g. jpg,png"
// @Param        order query string false "RANDOM, ASC or DESC"
// @Param        page query int false "Page (0-n)"
// @Param        include_breeds query int false "Include breed data (0/1)"
// @Param        has_breeds query int false "Only images with breed data (0/1)"
// @Success      200 {array} object
// @Failure      400 {object} httputil.ErrorResponse "Invalid parameters"
// @Failure      401 {object} httputil.ErrorResponse "Missing or invalid bearer token"
// @Failure      502 {object} httputil.ErrorResponse "Upstream provider failure"
// @Router       /imagesbybreedid [get]
func (h *Handler) GetByBreed(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	query, parseErrs := parseQuery(r.URL.Query())
	if len(parseErrs) > 0 {
		httputil.RespondValidationError(w, parseErrs)
		return
	}

	list, err := h.service.GetByBreed(r.Context(), query)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			httputil.RespondValidationError(w, verr.Messages)
			return
		}
		if errors.Is(err, ErrInvalidQuery) {
			httputil.RespondError(w, "invalid image query", http.StatusBadRequest)
			return
		}
		logger.Error("image lookup failed", "error", err.Error())
		httputil.RespondError(w, "error fetching images by breed", http.StatusBadGateway)
		return
	}

	httputil.RespondJSON(w, list, http.StatusOK)
}

// parseQuery maps raw query parameters onto a Query, collecting one message
// per parameter that is not numeric where a number is expected
func parseQuery(values url.Values) (Query, []string) {
	var parseErrs []string

	query := Query{
		BreedID:   values.Get("breed_id"),
		Size:      values.Get("size"),
		MimeTypes: values.Get("mime_types"),
		Order:     values.Get("order"),
	}

	intParam := func(name string) *int {
		raw := values.Get(name)
		if raw == "" {
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			parseErrs = append(parseErrs, name+" must be an integer")
			return nil
		}
		return &n
	}

	query.Limit = intParam("limit")
	query.Page = intParam("page")
	query.IncludeBreeds = intParam("include_breeds")
	query.HasBreeds = intParam("has_breeds")

	return query, parseErrs
}
