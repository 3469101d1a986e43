package breeds

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
	ErrNotFound     = errors.New("breed not found")
	ErrInvalidQuery = errors.New("invalid search query")
	ErrUpstream     = errors.New("upstream provider error")
)

// Breed is passed through from the upstream provider byte-for-byte;
// only the id field is ever inspected locally.
type Breed = json.RawMessage

// SearchQuery carries the filters for Search, both passed through upstream.
type SearchQuery struct {
	Q           string
	AttachImage *int // 0 or 1 when set
}

// Service proxies breed lookups to the upstream provider
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

// headers returns the upstream auth header, or nil when no key is configured
func (s *Service) headers() map[string]string {
	if s.apiKey == "" {
		return nil
	}
	return map[string]string{"x-api-key": s.apiKey}
}

// List returns all breeds from the upstream provider
func (s *Service) List(ctx context.Context) ([]Breed, error) {
	body, err := s.http.Get(ctx, "/breeds", &upstream.RequestOptions{Headers: s.headers()})
	if err != nil {
		s.logger.Error("failed to list breeds", "error", err.Error())
		return nil, ErrUpstream
	}

	list, err := decodeArray(body)
	if err != nil {
		s.logger.Error("unexpected breeds payload", "payload", truncate(body))
		return nil, ErrUpstream
	}

	return list, nil
}

// GetByID looks a breed up via the upstream search endpoint (the provider has
// no direct get-by-id). An exact id match wins; otherwise the first result is
// returned. An empty result set means the breed does not exist.
func (s *Service) GetByID(ctx context.Context, breedID string) (Breed, error) {
	body, err := s.http.Get(ctx, "/breeds/search", &upstream.RequestOptions{
		Headers: s.headers(),
		Query:   url.Values{"q": []string{breedID}},
	})
	if err != nil {
		s.logger.Error("failed to get breed", "breed_id", breedID, "error", err.Error())
		return nil, ErrUpstream
	}

	list, err := decodeArray(body)
	if err != nil {
		s.logger.Error("unexpected breed search payload", "breed_id", breedID, "payload", truncate(body))
		return nil, ErrUpstream
	}

	if len(list) == 0 {
		return nil, ErrNotFound
	}

	for _, b := range list {
		if breedIDOf(b) == breedID {
			return b, nil
		}
	}

	return list[0], nil
}

// Search proxies the upstream breed search, passing both filters through
func (s *Service) Search(ctx context.Context, query SearchQuery) ([]Breed, error) {
	params := url.Values{}
	if query.Q != "" {
		params.Set("q", query.Q)
	}
	if query.AttachImage != nil {
		params.Set("attach_image", strconv.Itoa(*query.AttachImage))
	}

	body, err := s.http.Get(ctx, "/breeds/search", &upstream.RequestOptions{
		Headers: s.headers(),
		Query:   params,
	})
	if err != nil {
		if upstream.StatusOf(err) == http.StatusBadRequest {
			return nil, ErrInvalidQuery
		}
		s.logger.Error("failed to search breeds", "q", query.Q, "error", err.Error())
		return nil, ErrUpstream
	}

	list, err := decodeArray(body)
	if err != nil {
		s.logger.Error("unexpected breed search payload", "q", query.Q, "payload", truncate(body))
		return nil, ErrUpstream
	}

	return list, nil
}

func decodeArray(body []byte) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []json.RawMessage{}
	}
	return list, nil
}

func breedIDOf(b Breed) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return ""
	}
	return probe.ID
}

// truncate keeps log lines bounded when an upstream payload is unexpected
func truncate(body []byte) string {
	const max = 256
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
