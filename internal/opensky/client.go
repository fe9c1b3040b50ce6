package opensky

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/yeonjoon13/swim-adsb/internal/model"
)

const (
	DefaultBaseURL = "https://opensky-network.org/api"
	DefaultTimeout = 30 * time.Second

	// state vectors shorter than this are malformed
	stateVectorFields = 17
	maxErrorBody      = 512
)

// StatusError is returned for any non-200 answer of the API.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("opensky %s: unexpected status %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("opensky %s: unexpected status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (useful for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. A client passed with
// WithHTTPClient is copied, never modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCredentials enables Basic Auth.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithRateLimit caps the request rate. Requests wait for a token.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// Client talks to the OpenSky Network REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
	limiter    *rate.Limiter
	timeout    time.Duration
}

// NewClient creates a client with a 30 second timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.httpClient == nil:
		timeout := c.timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	case c.timeout > 0:
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// statesResponse matches the /states/all payload
type statesResponse struct {
	Time   int64           `json:"time"`
	States [][]interface{} `json:"states"`
}

type flightResponse struct {
	ICAO24              string  `json:"icao24"`
	Callsign            *string `json:"callsign"`
	FirstSeen           int64   `json:"firstSeen"`
	LastSeen            int64   `json:"lastSeen"`
	EstDepartureAirport *string `json:"estDepartureAirport"`
	EstArrivalAirport   *string `json:"estArrivalAirport"`
}

type airportResponse struct {
	ICAO         string `json:"icao"`
	IATA         string `json:"iata"`
	Name         string `json:"name"`
	Municipality string `json:"municipality"`
	Country      string `json:"country"`
}

// GetStates returns the state vectors of every tracked aircraft.
func (c *Client) GetStates(ctx context.Context) ([]model.AircraftState, error) {
	var raw statesResponse
	if err := c.get(ctx, "/states/all", nil, &raw); err != nil {
		return nil, err
	}
	return parseStates(raw), nil
}

// GetFlightArrivals returns flights that arrived at airport within [begin, end].
func (c *Client) GetFlightArrivals(ctx context.Context, airport string, begin, end int64) ([]model.FlightConnection, error) {
	return c.flights(ctx, "/flights/arrival", airport, begin, end, model.Arrivals)
}

// GetFlightDepartures returns flights that departed from airport within [begin, end].
func (c *Client) GetFlightDepartures(ctx context.Context, airport string, begin, end int64) ([]model.FlightConnection, error) {
	return c.flights(ctx, "/flights/departure", airport, begin, end, model.Departures)
}

// GetAirport returns the metadata of an airport by ICAO code.
func (c *Client) GetAirport(ctx context.Context, code string) (model.Airport, error) {
	var raw airportResponse
	if err := c.get(ctx, "/airports/", url.Values{"icao": {code}}, &raw); err != nil {
		return model.Airport{}, err
	}
	return model.Airport{
		ICAO:         raw.ICAO,
		IATA:         raw.IATA,
		Name:         raw.Name,
		Municipality: raw.Municipality,
		Country:      raw.Country,
	}, nil
}

func (c *Client) flights(ctx context.Context, path, airport string, begin, end int64, dir model.Direction) ([]model.FlightConnection, error) {
	query := url.Values{
		"airport": {airport},
		"begin":   {strconv.FormatInt(begin, 10)},
		"end":     {strconv.FormatInt(end, 10)},
	}

	var raw []flightResponse
	if err := c.get(ctx, path, query, &raw); err != nil {
		// OpenSky answers 404 when the window holds no flights
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return []model.FlightConnection{}, nil
		}
		return nil, err
	}

	conns := make([]model.FlightConnection, 0, len(raw))
	for _, f := range raw {
		conns = append(conns, model.FlightConnection{
			ICAO24:              strings.TrimSpace(f.ICAO24),
			Callsign:            strings.TrimSpace(deref(f.Callsign)),
			EstDepartureAirport: deref(f.EstDepartureAirport),
			EstArrivalAirport:   deref(f.EstArrivalAirport),
			FirstSeen:           f.FirstSeen,
			LastSeen:            f.LastSeen,
			Direction:           dir,
		})
	}
	return conns, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("opensky %s: rate limit wait: %w", path, err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("opensky %s: creating request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("opensky %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("opensky %s: decoding response: %w", path, err)
	}
	return nil
}

func parseStates(raw statesResponse) []model.AircraftState {
	states := make([]model.AircraftState, 0, len(raw.States))
	for _, s := range raw.States {
		if len(s) < stateVectorFields {
			continue
		}
		st := model.AircraftState{
			ICAO24:        strings.TrimSpace(stringVal(s[0])),
			Callsign:      strings.TrimSpace(stringVal(s[1])),
			OriginCountry: stringVal(s[2]),
			Longitude:     floatPtr(s[5]),
			Latitude:      floatPtr(s[6]),
			OnGround:      boolVal(s[8]),
		}
		if v, ok := s[4].(float64); ok {
			st.LastContact = int64(v)
		}
		states = append(states, st)
	}
	return states
}

func stringVal(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func boolVal(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

func floatPtr(v interface{}) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
