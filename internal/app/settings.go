package app

import (
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/push"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
)

// DispatchSettings returns the matching bounds used by every dispatch run.
func (c EmergencyConfig) DispatchSettings() services.DispatchSettings {
	return services.DispatchSettings{
		RadiusKm:      c.SearchRadiusKm,
		MaxCandidates: c.MaxCandidates,
		PoolLimit:     c.CandidatePoolLimit,
	}
}

// Settings returns the intake toggles passed into EmergencyService.Create.
func (c EmergencyConfig) Settings() services.EmergencySettings {
	return services.EmergencySettings{
		AutoAssign:         c.AutoAssign,
		RateLimitPerMinute: c.RateLimitPerMinute,
		ResponseTimeout:    c.ResponseTimeout,
		Dispatch:           c.DispatchSettings(),
	}
}

// Settings returns push fan-out and delivery settings.
func (c PushConfig) Settings() services.PushSettings {
	defaults := services.DefaultPushSettings()
	settings := services.PushSettings{
		Enabled:            c.Enabled,
		MaxRetries:         c.MaxRetries,
		BatchSize:          c.BatchSize,
		BackoffBase:        c.BackoffBase,
		BackoffMax:         c.BackoffMax,
		RateLimitPerMinute: c.RateLimitPerMinute,
	}
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = defaults.MaxRetries
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = defaults.BatchSize
	}
	if settings.BackoffBase <= 0 {
		settings.BackoffBase = defaults.BackoffBase
	}
	if settings.BackoffMax < settings.BackoffBase {
		settings.BackoffMax = defaults.BackoffMax
	}
	return settings
}

// FCMConfig returns the Firebase gateway settings.
func (c PushConfig) FCMConfig() push.FCMConfig {
	return push.FCMConfig{
		ProjectID:       c.ProjectID,
		CredentialsFile: c.CredentialsFile,
	}
}
