package images

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"catapis/internal/logging"
	"catapis/internal/upstream"
)

var (
	ErrInvalidQuery = errors.New("invalid image query")
	ErrUpstream     = errors.New("upstream provider error")
)

var (
	allowedSizes  = []string{"thumb", "small", "med", "full"}
	allowedOrders = []string{"RANDOM", "ASC", "DESC"}
)

// Image is passed through from the upstream provider untouched
type Image = json.RawMessage

// Query carries the image lookup filters. BreedID is the only required field;
// everything else is optional and passed through upstream when present.
type Query struct {
	BreedID       string
	Limit         *int
	Size          string
	MimeTypes     string
	Order         string
	Page          *int
	IncludeBreeds *int
	HasBreeds     *int
}

// ValidationError carries one message per failed precondition check
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// Validate checks the query before any outbound call is made
func (q *Query) Validate() *ValidationError {
	var messages []string

	if strings.TrimSpace(q.BreedID) == "" {
		messages = append(messages, "breed_id is required")
	}
	if q.Limit != nil && (*q.Limit < 1 || *q.Limit > 25) {
		messages = append(messages, "limit must be between 1 and 25")
	}
	if q.Size != "" && !contains(allowedSizes, q.Size) {
		messages = append(messages, "size must be one of thumb, small, med, full")
	}
	if q.Order != "" && !contains(allowedOrders, q.Order) {
		messages = append(messages, "order must be one of RANDOM, ASC, DESC")
	}
	if q.Page != nil && *q.Page < 0 {
		messages = append(messages, "page must not be negative")
	}
	if q.IncludeBreeds != nil && *q.IncludeBreeds != 0 && *q.IncludeBreeds != 1 {
		messages = append(messages, "include_breeds must be 0 or 1")
	}
	if q.HasBreeds != nil && *q.HasBreeds != 0 && *q.HasBreeds != 1 {
		messages = append(messages, "has_breeds must be 0 or 1")
	}

	if len(messages) > 0 {
		return &ValidationError{Messages: messages}
	}
	return nil
}

// Service proxies image lookups to the upstream provider
type Service struct {
	http   *upstream.Client
	apiKey string
	logger *logging.Logger
}

func NewService(client *upstream.Client, apiKey string, logger *logging.Logger) *Service {
	return &Service{
		http:   client,
		apiKey: strings.TrimSpace(apiKey),
		logger: logger,
	}
}

func (s *Service) headers() map[string]string {
	if s.apiKey == "" {
		return nil
	}
	return map[string]string{"x-api-key": s.apiKey}
}

// GetByBreed returns images for a breed from the upstream /images/search
// endpoint. The internal breed_id maps to the provider's breed_ids parameter;
// limit, size and order are defaulted when absent.
func (s *Service) GetByBreed(ctx context.Context, query Query) ([]Image, error) {
	if verr := query.Validate(); verr != nil {
		return nil, verr
	}

	limit := 5
	if query.Limit != nil {
		limit = *query.Limit
	}
	size := query.Size
	if size == "" {
		size = "med"
	}
	order := query.Order
	if order == "" {
		order = "RANDOM"
	}

	params := url.Values{}
	params.Set("breed_ids", query.BreedID)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("size", size)
	params.Set("order", order)
	if query.MimeTypes != "" {
		params.Set("mime_types", query.MimeTypes)
	}
	if query.Page != nil {
		params.Set("page", strconv.Itoa(*query.Page))
	}
	if query.IncludeBreeds != nil {
		params.Set("include_breeds", strconv.Itoa(*query.IncludeBreeds))
	}
	if query.HasBreeds != nil {
		params.Set("has_breeds", strconv.Itoa(*query.HasBreeds))
	}

	body, err := s.http.Get(ctx, "/images/search", &upstream.RequestOptions{
		Headers: s.headers(),
		Query:   params,
	})
	if err != nil {
		if upstream.StatusOf(err) == http.StatusBadRequest {
			return nil, ErrInvalidQuery
		}
		s.logger.Error("failed to fetch images", "breed_id", query.BreedID, "error", err.Error())
		return nil, ErrUpstream
	}

	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err != nil {
		// Upstream contract violation: the endpoint must answer with an array
		s.logger.Error("unexpected images payload", "breed_id", query.BreedID, "payload", truncate(body))
		return nil, ErrUpstream
	}
	if list == nil {
		list = []json.RawMessage{}
	}

	return list, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func truncate(body []byte) string {
	const max = 256
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
