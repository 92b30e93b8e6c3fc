package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	DefaultBaseURL = "http://ip-api.com/json"
	defaultTimeout = 2 * time.Second
)

var errLookupFailed = errors.New("geolocation lookup failed")

type ipAPIResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// HTTPLocator resolves public addresses through an ip-api.com compatible
// endpoint. Lookups never fail the caller: any problem yields nil.
type HTTPLocator struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*domain.Geolocation]
	logger  zerolog.Logger
}

func NewHTTPLocator(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPLocator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger = logger.With().Str("component", "geo").Logger()

	breaker := gobreaker.NewCircuitBreaker[*domain.Geolocation](gobreaker.Settings{
		Name:        "geolocation",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})

	return &HTTPLocator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}
}

func (l *HTTPLocator) Locate(ctx context.Context, ip string) *domain.Geolocation {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil || !isPublic(addr) {
		return nil
	}

	geo, err := l.breaker.Execute(func() (*domain.Geolocation, error) {
		return l.query(ctx, addr.String())
	})
	if err != nil {
		l.logger.Debug().Err(err).Str("ip", addr.String()).Msg("geolocation unavailable")
		return nil
	}
	return geo
}

func (l *HTTPLocator) query(ctx context.Context, ip string) (*domain.Geolocation, error) {
	url := fmt.Sprintf("%s/%s?fields=status,message,country,regionName,city,lat,lon", l.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query geolocation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", errLookupFailed, resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode geolocation: %w", err)
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("%w: %s", errLookupFailed, result.Message)
	}

	return &domain.Geolocation{
		City:      result.City,
		Region:    result.RegionName,
		Country:   result.Country,
		Latitude:  result.Lat,
		Longitude: result.Lon,
	}, nil
}

// isPublic reports whether addr can be geolocated at all.
func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsUnspecified() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsMulticast()
}
