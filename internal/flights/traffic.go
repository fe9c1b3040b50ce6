package flights

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/yeonjoon13/swim-adsb/internal/logging"
	"github.com/yeonjoon13/swim-adsb/internal/metrics"
	"github.com/yeonjoon13/swim-adsb/internal/model"
)

const (
	// ConnectionsTTL is long because schedules change slowly within a day.
	ConnectionsTTL = 10 * time.Minute
	StatesTTL      = 30 * time.Second
	CacheCapacity  = 1024

	statesKey = "states"
)

// Provider is the flight data source behind the caches.
type Provider interface {
	GetStates(ctx context.Context) ([]model.AircraftState, error)
	GetFlightArrivals(ctx context.Context, airport string, begin, end int64) ([]model.FlightConnection, error)
	GetFlightDepartures(ctx context.Context, airport string, begin, end int64) ([]model.FlightConnection, error)
	GetAirport(ctx context.Context, code string) (model.Airport, error)
}

// Options configures AirTraffic.
type Options struct {
	LookbackDays        int
	WindowPolicy        WindowPolicy
	ResolveAirportNames bool
	Clock               Clock
}

// AirTraffic tracks the flights landing at and departing from airports by
// joining cached connections with the cached global state snapshot.
type AirTraffic struct {
	provider Provider
	opts     Options
	log      zerolog.Logger

	states      *Cache[map[string]model.AircraftState]
	connections *Cache[[]model.FlightConnection]
	airports    *Cache[string]
}

// New validates opts and builds the three caches.
func New(provider Provider, opts Options) (*AirTraffic, error) {
	if provider == nil {
		return nil, fmt.Errorf("flights: nil provider")
	}
	if opts.LookbackDays < 0 {
		return nil, fmt.Errorf("flights: %w: %d", ErrInvalidLookback, opts.LookbackDays)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	log := logging.Component("flights")
	return &AirTraffic{
		provider: provider,
		opts:     opts,
		log:      log,
		states: NewCache[map[string]model.AircraftState]("states",
			WithTTL(StatesTTL), WithCapacity(CacheCapacity), WithClock(opts.Clock),
			WithFailureCaching(), WithLogger(log)),
		connections: NewCache[[]model.FlightConnection]("connections",
			WithTTL(ConnectionsTTL), WithCapacity(CacheCapacity), WithClock(opts.Clock),
			WithFailureCaching(), WithLogger(log)),
		airports: NewCache[string]("airports", WithClock(opts.Clock), WithLogger(log)),
	}, nil
}

// States returns every broadcasting aircraft keyed by ICAO24. A failed
// refresh yields an empty map until the TTL runs out.
func (t *AirTraffic) States(ctx context.Context) map[string]model.AircraftState {
	states, _ := t.states.GetOrFetch(ctx, statesKey, t.fetchStates)
	return states
}

// Connections returns the arrivals or departures of an airport within the
// configured window. A failed refresh yields an empty list until the TTL runs out.
func (t *AirTraffic) Connections(ctx context.Context, airport string, dir model.Direction) []model.FlightConnection {
	key := airport + "/" + dir.String()
	conns, _ := t.connections.GetOrFetch(ctx, key, func(ctx context.Context) ([]model.FlightConnection, error) {
		return t.fetchConnections(ctx, airport, dir)
	})
	return conns
}

// AirportName resolves an airport code to "<name>, <municipality>".
// Lookup failures are not cached and yield model.UnknownAirport.
func (t *AirTraffic) AirportName(ctx context.Context, code string) string {
	if code == "" || code == model.UnknownAirport {
		return model.UnknownAirport
	}

	name, err := t.airports.GetOrFetch(ctx, code, func(ctx context.Context) (string, error) {
		airport, err := observe("airport", func() (model.Airport, error) {
			return t.provider.GetAirport(ctx, code)
		})
		if err != nil {
			return "", err
		}
		if n := airport.DisplayName(); n != "" {
			return n, nil
		}
		return code, nil
	})
	if err != nil {
		t.log.Warn().Err(err).Str("airport", code).Msg("could not resolve airport name")
		return model.UnknownAirport
	}
	return name
}

// Feed joins the current states with an airport's connections.
func (t *AirTraffic) Feed(ctx context.Context, airport string, dir model.Direction) []model.JoinedFlightRecord {
	states := t.States(ctx)
	records := Join(states, t.Connections(ctx, airport, dir))

	if t.opts.ResolveAirportNames {
		for i := range records {
			records[i].From = t.AirportName(ctx, records[i].From)
			records[i].To = t.AirportName(ctx, records[i].To)
		}
	}

	metrics.JoinedRecords.WithLabelValues(airport, dir.String()).Set(float64(len(records)))
	return records
}

// ArrivalsHandler produces the arrivals feed message of an airport.
func (t *AirTraffic) ArrivalsHandler(airport string) func(context.Context) (model.Message, error) {
	return t.handler(airport, model.Arrivals)
}

// DeparturesHandler produces the departures feed message of an airport.
func (t *AirTraffic) DeparturesHandler(airport string) func(context.Context) (model.Message, error) {
	return t.handler(airport, model.Departures)
}

func (t *AirTraffic) handler(airport string, dir model.Direction) func(context.Context) (model.Message, error) {
	return func(ctx context.Context) (model.Message, error) {
		body, err := json.Marshal(t.Feed(ctx, airport, dir))
		if err != nil {
			return model.Message{}, fmt.Errorf("encode %s of %s: %w", dir, airport, err)
		}
		return model.Message{Body: body, ContentType: model.ContentTypeJSON}, nil
	}
}

func (t *AirTraffic) fetchStates(ctx context.Context) (map[string]model.AircraftState, error) {
	list, err := observe("states", func() ([]model.AircraftState, error) {
		return t.provider.GetStates(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("get states: %w", err)
	}

	states := make(map[string]model.AircraftState, len(list))
	for _, s := range list {
		if s.ICAO24 == "" {
			continue
		}
		states[s.ICAO24] = s
	}
	t.log.Debug().Int("aircraft", len(states)).Msg("refreshed states")
	return states, nil
}

func (t *AirTraffic) fetchConnections(ctx context.Context, airport string, dir model.Direction) ([]model.FlightConnection, error) {
	begin, end, err := Window(t.opts.WindowPolicy, t.opts.LookbackDays, t.opts.Clock())
	if err != nil {
		return nil, err
	}

	fetch := t.provider.GetFlightArrivals
	if dir == model.Departures {
		fetch = t.provider.GetFlightDepartures
	}

	conns, err := observe(dir.String(), func() ([]model.FlightConnection, error) {
		return fetch(ctx, airport, begin, end)
	})
	if err != nil {
		return nil, fmt.Errorf("get %s of %s: %w", dir, airport, err)
	}

	for i := range conns {
		conns[i].Direction = dir
	}
	t.log.Debug().Str("airport", airport).Stringer("direction", dir).
		Int("connections", len(conns)).Msg("refreshed connections")
	return conns, nil
}

// observe records latency and failures of one provider call.
func observe[T any](call string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	metrics.ProviderDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderErrors.WithLabelValues(call).Inc()
	}
	return v, err
}
