package flights

import "github.com/yeonjoon13/swim-adsb/internal/model"

// Join matches connections against live states by ICAO24.
//
// Connections without an identifier are dropped and duplicates collapse to
// the last one seen. Only identifiers present in both inputs produce a
// record. The order of the result is unspecified.
func Join(states map[string]model.AircraftState, connections []model.FlightConnection) []model.JoinedFlightRecord {
	byID := make(map[string]model.FlightConnection, len(connections))
	for _, fc := range connections {
		if fc.ICAO24 == "" {
			continue
		}
		byID[fc.ICAO24] = fc
	}

	records := make([]model.JoinedFlightRecord, 0, len(byID))
	for id, fc := range byID {
		state, ok := states[id]
		if !ok {
			continue
		}
		records = append(records, model.JoinedFlightRecord{
			ICAO24:      id,
			Latitude:    state.Latitude,
			Longitude:   state.Longitude,
			From:        airportOrUnknown(fc.EstDepartureAirport),
			To:          airportOrUnknown(fc.EstArrivalAirport),
			LastContact: state.LastContact,
		})
	}
	return records
}

func airportOrUnknown(code string) string {
	if code == "" {
		return model.UnknownAirport
	}
	return code
}
