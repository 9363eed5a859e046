package config

import "time"

// Route declares one station timetable to collect.
type Route struct {
	Key          string   `yaml:"key" validate:"required"`
	StationID    string   `yaml:"station" validate:"required,numeric"`
	LineID       string   `yaml:"line" validate:"required,numeric"`
	DirectionID  string   `yaml:"direction" validate:"required,oneof=0 1"`
	TypeKeywords []string `yaml:"type_keywords" validate:"dive,required"`
	// RequiredFinalStation is the terminal a run must end at; empty accepts
	// any terminal.
	RequiredFinalStation string `yaml:"dest_final"`
}

// ThroughRoute joins collected routes into rider-facing journeys. Without a
// downstream route it publishes the upstream runs as direct journeys.
type ThroughRoute struct {
	Key                  string `yaml:"key" validate:"required"`
	Upstream             string `yaml:"upstream" validate:"required"`
	Downstream           string `yaml:"downstream"`
	Origin               string `yaml:"origin" validate:"required"`
	TransferStation      string `yaml:"transfer" validate:"required_with=Downstream"`
	MinConnectionMinutes int    `yaml:"min_connection_minutes" validate:"gte=0"`
}

// MinConnection is the minimum transfer time.
func (t ThroughRoute) MinConnection() time.Duration {
	return time.Duration(t.MinConnectionMinutes) * time.Minute
}

// IsDirect reports whether the journey is a single leg.
func (t ThroughRoute) IsDirect() bool {
	return t.Downstream == ""
}

// RouteFile is the root of a routes.yml document.
type RouteFile struct {
	PointsOfInterest []string       `yaml:"points_of_interest" validate:"required,min=1,dive,required"`
	Routes           []Route        `yaml:"routes" validate:"required,min=1,dive"`
	ThroughRoutes    []ThroughRoute `yaml:"through_routes" validate:"dive"`
}

// Route looks a route up by key.
func (f *RouteFile) Route(key string) (Route, bool) {
	for _, r := range f.Routes {
		if r.Key == key {
			return r, true
		}
	}
	return Route{}, false
}

// Select returns the routes named in keys, in the given order. Unknown keys
// are returned separately so the caller can report them.
func (f *RouteFile) Select(keys []string) (selected []Route, unknown []string) {
	if len(keys) == 0 {
		return append([]Route(nil), f.Routes...), nil
	}
	for _, k := range keys {
		if r, ok := f.Route(k); ok {
			selected = append(selected, r)
		} else {
			unknown = append(unknown, k)
		}
	}
	return selected, unknown
}
