package flights

import (
	"context"
	"sync"
	"time"

	"github.com/yeonjoon13/swim-adsb/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.May, 10, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type window struct {
	airport    string
	begin, end int64
}

// stubProvider counts calls and delegates to per-call functions.
type stubProvider struct {
	mu sync.Mutex

	statesFn     func(call int) ([]model.AircraftState, error)
	arrivalsFn   func(airport string, call int) ([]model.FlightConnection, error)
	departuresFn func(airport string, call int) ([]model.FlightConnection, error)
	airportFn    func(code string, call int) (model.Airport, error)

	statesCalls     int
	arrivalsCalls   int
	departuresCalls int
	airportCalls    int
	windows         []window
}

func (p *stubProvider) GetStates(ctx context.Context) ([]model.AircraftState, error) {
	p.mu.Lock()
	p.statesCalls++
	call := p.statesCalls
	p.mu.Unlock()
	if p.statesFn == nil {
		return nil, nil
	}
	return p.statesFn(call)
}

func (p *stubProvider) GetFlightArrivals(ctx context.Context, airport string, begin, end int64) ([]model.FlightConnection, error) {
	p.mu.Lock()
	p.arrivalsCalls++
	call := p.arrivalsCalls
	p.windows = append(p.windows, window{airport: airport, begin: begin, end: end})
	p.mu.Unlock()
	if p.arrivalsFn == nil {
		return nil, nil
	}
	return p.arrivalsFn(airport, call)
}

func (p *stubProvider) GetFlightDepartures(ctx context.Context, airport string, begin, end int64) ([]model.FlightConnection, error) {
	p.mu.Lock()
	p.departuresCalls++
	call := p.departuresCalls
	p.windows = append(p.windows, window{airport: airport, begin: begin, end: end})
	p.mu.Unlock()
	if p.departuresFn == nil {
		return nil, nil
	}
	return p.departuresFn(airport, call)
}

func (p *stubProvider) GetAirport(ctx context.Context, code string) (model.Airport, error) {
	p.mu.Lock()
	p.airportCalls++
	call := p.airportCalls
	p.mu.Unlock()
	if p.airportFn == nil {
		return model.Airport{}, nil
	}
	return p.airportFn(code, call)
}

func (p *stubProvider) calls() (states, arrivals, departures, airports int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statesCalls, p.arrivalsCalls, p.departuresCalls, p.airportCalls
}

func ptr(f float64) *float64 { return &f }

func byICAO(records []model.JoinedFlightRecord) map[string]model.JoinedFlightRecord {
	out := make(map[string]model.JoinedFlightRecord, len(records))
	for _, r := range records {
		out[r.ICAO24] = r
	}
	return out
}
