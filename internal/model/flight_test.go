package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "arrivals", Arrivals.String())
	assert.Equal(t, "departures", Departures.String())
	assert.Equal(t, "unknown", Direction(7).String())
}

func TestAirportDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		airport Airport
		want    string
	}{
		{name: "name and municipality", airport: Airport{Name: "Brussels Airport", Municipality: "Zaventem"}, want: "Brussels Airport, Zaventem"},
		{name: "name only", airport: Airport{Name: "Schiphol"}, want: "Schiphol"},
		{name: "empty", airport: Airport{}, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.airport.DisplayName())
		})
	}
}
