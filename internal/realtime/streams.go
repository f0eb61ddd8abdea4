package realtime

// Named realtime streams.
const (
	StreamEmergencies   = "emergencies"
	StreamNotifications = "notifications"
)

// Emergency lifecycle events published on StreamEmergencies.
const (
	EventEmergencyCreated       = "emergency.created"
	EventEmergencyDispatched    = "emergency.dispatched"
	EventEmergencyDispatchEmpty = "emergency.dispatch_failed"
	EventEmergencyAccepted      = "emergency.accepted"
	EventEmergencyStatusChanged = "emergency.status_changed"
	EventEmergencyEscalated     = "emergency.escalated"
)
