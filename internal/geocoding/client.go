package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domain "github.com/threadcart/storefront/internal/domain"
)

const (
	defaultEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"
	defaultTimeout  = 8 * time.Second
)

var (
	// ErrInvalidCoordinates is returned for out-of-range latitude or longitude.
	ErrInvalidCoordinates = errors.New("geocoding: invalid coordinates")
	// ErrNoResults is returned when the API cannot resolve the coordinates.
	ErrNoResults = errors.New("geocoding: no results")
	// ErrUnavailable wraps transport failures and error statuses.
	ErrUnavailable = errors.New("geocoding: api unavailable")
)

// Config configures the reverse geocoding client.
type Config struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

// Client resolves coordinates into structured addresses using the Geocoding REST API.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

// NewClient validates the configuration.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("geocoding: api key is required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{apiKey: key, endpoint: endpoint, http: httpClient}, nil
}

type geocodeResponse struct {
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message"`
	Results      []geocodeResult `json:"results"`
}

type geocodeResult struct {
	Components []addressComponent `json:"address_components"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// ReverseGeocode resolves lat/lng to the first result's address components.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.GeoAddress, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return domain.GeoAddress{}, ErrInvalidCoordinates
	}

	params := url.Values{}
	params.Set("latlng", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lng, 'f', -1, 64))
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return domain.GeoAddress{}, fmt.Errorf("geocoding: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.GeoAddress{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.GeoAddress{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded geocodeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return domain.GeoAddress{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	switch decoded.Status {
	case "OK":
	case "ZERO_RESULTS":
		return domain.GeoAddress{}, ErrNoResults
	default:
		return domain.GeoAddress{}, fmt.Errorf("%w: %s %s", ErrUnavailable, decoded.Status, decoded.ErrorMessage)
	}
	if len(decoded.Results) == 0 {
		return domain.GeoAddress{}, ErrNoResults
	}
	return addressFromComponents(decoded.Results[0].Components), nil
}

func addressFromComponents(components []addressComponent) domain.GeoAddress {
	find := func(kind string) string {
		for _, component := range components {
			for _, t := range component.Types {
				if t == kind {
					return component.LongName
				}
			}
		}
		return ""
	}

	street := strings.TrimSpace(strings.Join(nonEmpty(find("street_number"), find("route")), " "))
	city := find("locality")
	if city == "" {
		city = find("administrative_area_level_2")
	}
	return domain.GeoAddress{
		Street:     street,
		City:       city,
		State:      find("administrative_area_level_1"),
		PostalCode: find("postal_code"),
		Country:    find("country"),
	}
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
