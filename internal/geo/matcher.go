package geo

import (
	"sort"
	"strings"
)

const (
	// DefaultMaxCandidates caps how many ranked workers Match returns.
	DefaultMaxCandidates = 5
	// DefaultPoolLimit bounds the worker pool inspected before distance computation.
	DefaultPoolLimit = 100
)

// Worker is a snapshot of a worker relevant to matching.
type Worker struct {
	ID          string
	Lat         *float64
	Lng         *float64
	IsAvailable bool
	Rating      float64
	ServiceIDs  []string
}

// Candidate is a worker that passed filtering, with its rounded distance.
type Candidate struct {
	Worker     Worker
	DistanceKm float64
}

// MatchOptions controls filtering and capping.
type MatchOptions struct {
	RadiusKm      float64
	ServiceID     string
	MaxCandidates int
	PoolLimit     int
}

// Match filters the pool to available workers within the radius that offer the
// requested service, then orders them by distance ascending and rating descending.
// An empty slice is a valid result.
func Match(origin Point, pool []Worker, opts MatchOptions) []Candidate {
	maxCandidates := opts.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	if opts.PoolLimit > 0 && len(pool) > opts.PoolLimit {
		pool = pool[:opts.PoolLimit]
	}
	serviceID := strings.TrimSpace(opts.ServiceID)

	candidates := make([]Candidate, 0, len(pool))
	for _, worker := range pool {
		if !worker.IsAvailable || worker.Lat == nil || worker.Lng == nil {
			continue
		}
		if serviceID != "" && !offers(worker, serviceID) {
			continue
		}
		target := Point{Lat: *worker.Lat, Lng: *worker.Lng}
		if ValidateCoordinates(target.Lat, target.Lng) != nil {
			continue
		}

		distance := Haversine(origin, target)
		if distance > opts.RadiusKm {
			continue
		}
		candidates = append(candidates, Candidate{Worker: worker, DistanceKm: RoundKm(distance)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm != candidates[j].DistanceKm {
			return candidates[i].DistanceKm < candidates[j].DistanceKm
		}
		return candidates[i].Worker.Rating > candidates[j].Worker.Rating
	})

	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	return candidates
}

func offers(worker Worker, serviceID string) bool {
	for _, id := range worker.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}
