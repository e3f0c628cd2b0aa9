package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/shopspring/decimal"

	domain "github.com/threadcart/storefront/internal/domain"
)

var (
	// ErrUnavailable wraps transport failures and unexpected responses from the rate API.
	ErrUnavailable = errors.New("shipping: rate api unavailable")
	// ErrUnauthorized is returned when the credential exchange is rejected.
	ErrUnauthorized = errors.New("shipping: credentials rejected")
)

const (
	defaultTimeout    = 10 * time.Second
	defaultTokenTTL   = 24 * time.Hour
	tokenRefreshEarly = time.Minute
	maxResponseBytes  = 1 << 20
)

// Logger receives diagnostic events from the client.
type Logger func(ctx context.Context, event string, fields map[string]any)

// ClientConfig configures the rate API client.
type ClientConfig struct {
	BaseURL        string
	Email          string
	Password       string
	PickupPostcode string
	HTTPClient     *http.Client
	Clock          func() time.Time
	Logger         Logger
}

// Client queries courier rates from the shipping aggregator. A bearer token obtained by
// exchanging account credentials is cached until shortly before it expires.
type Client struct {
	baseURL  string
	email    string
	password string
	pickup   string
	http     *http.Client
	clock    func() time.Time
	logger   Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient validates configuration and returns a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("shipping: base url is required")
	}
	if strings.TrimSpace(cfg.Email) == "" || cfg.Password == "" {
		return nil, errors.New("shipping: credentials are required")
	}
	if !domain.ValidPostcode(strings.TrimSpace(cfg.PickupPostcode)) {
		return nil, errors.New("shipping: pickup postcode must be 6 digits")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Client{
		baseURL:  base,
		email:    strings.TrimSpace(cfg.Email),
		password: cfg.Password,
		pickup:   strings.TrimSpace(cfg.PickupPostcode),
		http:     httpClient,
		clock:    clock,
		logger:   logger,
	}, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type serviceabilityResponse struct {
	Data struct {
		Companies []courierCompany `json:"available_courier_companies"`
	} `json:"data"`
}

type courierCompany struct {
	ID            json.Number     `json:"courier_company_id"`
	Name          string          `json:"courier_name"`
	Rate          json.Number     `json:"rate"`
	EstimatedDays json.RawMessage `json:"estimated_delivery_days"`
}

// Rates returns courier options sorted by ascending rate. Postcodes that are not six digits
// yield no options and no request is sent.
func (c *Client) Rates(ctx context.Context, query domain.ShippingRateQuery) ([]domain.ShippingOption, error) {
	postcode := strings.TrimSpace(query.DeliveryPostcode)
	if !domain.ValidPostcode(postcode) {
		return []domain.ShippingOption{}, nil
	}

	params := url.Values{}
	params.Set("pickup_postcode", c.pickup)
	params.Set("delivery_postcode", postcode)
	params.Set("cod", boolFlag(query.CashOnDelivery))
	params.Set("weight", query.WeightKg.StringFixed(2))
	params.Set("declared_value", query.DeclaredValue.StringFixed(2))
	endpoint := c.baseURL + "/courier/serviceability?" + params.Encode()

	var decoded serviceabilityResponse
	status, err := c.getJSON(ctx, endpoint, &decoded)
	if status == http.StatusUnauthorized {
		c.invalidateToken()
		status, err = c.getJSON(ctx, endpoint, &decoded)
	}
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return []domain.ShippingOption{}, nil
	}

	options := make([]domain.ShippingOption, 0, len(decoded.Data.Companies))
	for _, company := range decoded.Data.Companies {
		rate, err := decimal.NewFromString(company.Rate.String())
		if err != nil {
			c.logger(ctx, "shipping.rates.invalid_rate", map[string]any{"courier": company.Name, "rate": company.Rate.String()})
			continue
		}
		options = append(options, domain.ShippingOption{
			CourierID:     company.ID.String(),
			CourierName:   strings.TrimSpace(company.Name),
			Rate:          domain.RoundMoney(rate),
			EstimatedDays: strings.Trim(string(company.EstimatedDays), `"`),
		})
	}
	SortOptions(options)
	return options, nil
}

// SortOptions orders options by ascending rate, breaking ties by courier name.
func SortOptions(options []domain.ShippingOption) {
	sort.SliceStable(options, func(i, j int) bool {
		if cmp := options[i].Rate.Cmp(options[j].Rate); cmp != 0 {
			return cmp < 0
		}
		return options[i].CourierName < options[j].CourierName
	})
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) (int, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("shipping: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return resp.StatusCode, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return resp.StatusCode, nil
}

func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.token != "" && now.Before(c.tokenExpiry) {
		return c.token, nil
	}

	body, err := json.Marshal(loginRequest{Email: c.email, Password: c.password})
	if err != nil {
		return "", fmt.Errorf("shipping: encode login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("shipping: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: login: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: login status %d", ErrUnavailable, resp.StatusCode)
	}
	var decoded loginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode login: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(decoded.Token) == "" {
		return "", fmt.Errorf("%w: empty token", ErrUnavailable)
	}

	c.token = decoded.Token
	c.tokenExpiry = tokenExpiry(decoded.Token, now).Add(-tokenRefreshEarly)
	c.logger(ctx, "shipping.token.refreshed", map[string]any{"expiresAt": c.tokenExpiry})
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// tokenExpiry reads the exp claim without verifying the signature; the token is only
// ever presented back to its issuer.
func tokenExpiry(token string, now time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return now.Add(defaultTokenTTL)
	}
	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0)
	case json.Number:
		if v, err := exp.Int64(); err == nil {
			return time.Unix(v, 0)
		}
	case string:
		if v, err := strconv.ParseInt(exp, 10, 64); err == nil {
			return time.Unix(v, 0)
		}
	}
	return now.Add(defaultTokenTTL)
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
