package locationIQ

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/types"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

const DefaultBaseURL = "https://us1.locationiq.com"

var ErrLocationNotFound = errors.New("location not found")

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// LocationIQClient resolves coordinates to addresses and back.
type LocationIQClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(cfg Config) *LocationIQClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &LocationIQClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type addressPayload struct {
	Address string `json:"display_name"`
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// GetAddress reverse-geocodes a point into a display name.
func (c *LocationIQClient) GetAddress(ctx context.Context, longitude, latitude float64) (string, error) {
	const op = "LocationIQClient.GetAddress"

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("lat", strconv.FormatFloat(latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(longitude, 'f', 6, 64))
	q.Set("format", "json")

	var payload addressPayload
	if err := c.get(ctx, "/v1/reverse", q, &payload); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return "", wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if payload.Address == "" {
		return "", wrap.Error(ctx, fmt.Errorf("%s: %w", op, ErrLocationNotFound))
	}

	return payload.Address, nil
}

// GetLocation geocodes an address and returns longitude and latitude.
func (c *LocationIQClient) GetLocation(ctx context.Context, address string) (float64, float64, error) {
	const op = "LocationIQClient.GetLocation"

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", address)
	q.Set("format", "json")

	var results []searchResult
	if err := c.get(ctx, "/v1/search", q, &results); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return 0, 0, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if len(results) == 0 {
		return 0, 0, wrap.Error(ctx, fmt.Errorf("%s: %w", op, ErrLocationNotFound))
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return 0, 0, wrap.Error(ctx, fmt.Errorf("%s: failed to parse latitude: %w", op, err))
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return 0, 0, wrap.Error(ctx, fmt.Errorf("%s: failed to parse longitude: %w", op, err))
	}

	return lon, lat, nil
}

func (c *LocationIQClient) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request to LocationIQ: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrLocationNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected response status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode LocationIQ response: %w", err)
	}
	return nil
}
