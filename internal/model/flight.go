package model

import "strings"

// UnknownAirport replaces an airport the provider could not determine.
const UnknownAirport = "Unknown airport"

// ContentTypeJSON is the content type of every feed message.
const ContentTypeJSON = "application/json"

// Direction tells whether a connection arrives at or departs from an airport.
type Direction int

const (
	Arrivals Direction = iota
	Departures
)

func (d Direction) String() string {
	switch d {
	case Arrivals:
		return "arrivals"
	case Departures:
		return "departures"
	default:
		return "unknown"
	}
}

// AircraftState is one aircraft's last broadcast position
type AircraftState struct {
	ICAO24        string   `json:"icao24"`
	Callsign      string   `json:"callsign"`
	OriginCountry string   `json:"origin_country"`
	Latitude      *float64 `json:"lat"`
	Longitude     *float64 `json:"lon"`
	OnGround      bool     `json:"on_ground"`
	LastContact   int64    `json:"last_contact"`
}

// FlightConnection is a scheduled or observed arrival/departure at an airport.
// Empty airport codes mean the provider could not estimate them.
type FlightConnection struct {
	ICAO24              string    `json:"icao24"`
	Callsign            string    `json:"callsign"`
	EstDepartureAirport string    `json:"estDepartureAirport"`
	EstArrivalAirport   string    `json:"estArrivalAirport"`
	FirstSeen           int64     `json:"firstSeen"`
	LastSeen            int64     `json:"lastSeen"`
	Direction           Direction `json:"-"`
}

// JoinedFlightRecord is the unit published on an airport topic
type JoinedFlightRecord struct {
	ICAO24      string   `json:"icao24"`
	Latitude    *float64 `json:"lat"`
	Longitude   *float64 `json:"lng"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	LastContact int64    `json:"last_contact"`
}

// Airport holds the provider's metadata for one airport
type Airport struct {
	ICAO         string `json:"icao"`
	IATA         string `json:"iata"`
	Name         string `json:"name"`
	Municipality string `json:"municipality"`
	Country      string `json:"country"`
}

// DisplayName renders "<name>, <municipality>", skipping missing parts.
func (a Airport) DisplayName() string {
	parts := make([]string, 0, 2)
	if a.Name != "" {
		parts = append(parts, a.Name)
	}
	if a.Municipality != "" {
		parts = append(parts, a.Municipality)
	}
	return strings.Join(parts, ", ")
}

// Message is one payload handed to the message bus
type Message struct {
	Topic       string
	Body        []byte
	ContentType string
}
