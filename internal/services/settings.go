package services

import (
	"time"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/geo"
)

// DispatchSettings bounds candidate matching for one dispatch run.
type DispatchSettings struct {
	RadiusKm      float64
	MaxCandidates int
	PoolLimit     int
}

// EmergencySettings carries intake toggles. AutoAssign is read at creation time only.
type EmergencySettings struct {
	AutoAssign         bool
	RateLimitPerMinute int
	ResponseTimeout    time.Duration
	Dispatch           DispatchSettings
}

// PushSettings controls fan-out and delivery.
type PushSettings struct {
	Enabled            bool
	MaxRetries         int
	BatchSize          int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	RateLimitPerMinute int
}

// DefaultDispatchSettings returns the stock matching bounds.
func DefaultDispatchSettings() DispatchSettings {
	return DispatchSettings{
		RadiusKm:      5,
		MaxCandidates: geo.DefaultMaxCandidates,
		PoolLimit:     geo.DefaultPoolLimit,
	}
}

// DefaultPushSettings returns push delivery defaults with delivery disabled.
func DefaultPushSettings() PushSettings {
	return PushSettings{
		MaxRetries:  3,
		BatchSize:   100,
		BackoffBase: time.Second,
		BackoffMax:  10 * time.Minute,
	}
}

func (s DispatchSettings) normalised() DispatchSettings {
	defaults := DefaultDispatchSettings()
	if s.RadiusKm <= 0 {
		s.RadiusKm = defaults.RadiusKm
	}
	if s.MaxCandidates <= 0 {
		s.MaxCandidates = defaults.MaxCandidates
	}
	if s.PoolLimit <= 0 {
		s.PoolLimit = defaults.PoolLimit
	}
	return s
}

func (s PushSettings) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultPushSettings().BatchSize
	}
	return s.BatchSize
}
