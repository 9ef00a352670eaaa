// Package cities provides the immutable registry of traded cities with
// their forecast grids, settlement stations, and correlation clusters.
package cities

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/skybotdev/skybot/internal/domain"
)

//go:embed cities.json
var citiesJSON []byte

// Codes lists the ten traded city codes in canonical order.
var Codes = []string{"NYC", "CHI", "LAX", "MIA", "AUS", "DEN", "PHL", "BOS", "SEA", "SFO"}

// cityJSON mirrors the embedded registry file.
type cityJSON struct {
	Code              string  `json:"code"`
	Name              string  `json:"name"`
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	Timezone          string  `json:"timezone"`
	Cluster           string  `json:"cluster"`
	ForecastOffice    string  `json:"forecast_office"`
	GridX             int     `json:"grid_x"`
	GridY             int     `json:"grid_y"`
	SettlementStation string  `json:"settlement_station"`
}

// Registry holds the loaded city configurations. It is populated once at
// boot and read-only afterwards.
type Registry struct {
	cities map[string]domain.City
}

// Load parses the embedded registry and verifies that every canonical city
// is present with a known cluster.
func Load() (*Registry, error) {
	var raw map[string]cityJSON
	if err := json.Unmarshal(citiesJSON, &raw); err != nil {
		return nil, fmt.Errorf("cities: parse registry: %w", err)
	}

	validClusters := map[domain.Cluster]bool{
		domain.ClusterNE:       true,
		domain.ClusterSE:       true,
		domain.ClusterMidwest:  true,
		domain.ClusterMountain: true,
		domain.ClusterWest:     true,
	}

	cities := make(map[string]domain.City, len(raw))
	for code, c := range raw {
		cluster := domain.Cluster(c.Cluster)
		if !validClusters[cluster] {
			return nil, fmt.Errorf("cities: %s has unknown cluster %q", code, c.Cluster)
		}
		cities[code] = domain.City{
			Code:              c.Code,
			Name:              c.Name,
			Lat:               c.Lat,
			Lon:               c.Lon,
			Timezone:          c.Timezone,
			Cluster:           cluster,
			ForecastOffice:    c.ForecastOffice,
			GridX:             c.GridX,
			GridY:             c.GridY,
			SettlementStation: c.SettlementStation,
		}
	}

	for _, code := range Codes {
		if _, ok := cities[code]; !ok {
			return nil, fmt.Errorf("cities: registry missing %s", code)
		}
	}

	return &Registry{cities: cities}, nil
}

// Get returns the configuration for a city code.
func (r *Registry) Get(code string) (domain.City, error) {
	c, ok := r.cities[code]
	if !ok {
		return domain.City{}, fmt.Errorf("cities: %s: %w", code, domain.ErrNotFound)
	}
	return c, nil
}

// All returns every city sorted by code.
func (r *Registry) All() []domain.City {
	out := make([]domain.City, 0, len(r.cities))
	for _, c := range r.cities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ClusterOf returns the correlation cluster for a city code, or the empty
// cluster when the code is unknown.
func (r *Registry) ClusterOf(code string) domain.Cluster {
	return r.cities[code].Cluster
}
