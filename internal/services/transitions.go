package services

import "github.com/anandyadav-dev/HunarMitra-Backend/internal/models"

// manualTransitions lists status changes an administrator or requester may apply.
// open→dispatched and dispatched→accepted are driven by dispatch and accept only.
var manualTransitions = map[string][]string{
	models.EmergencyStatusOpen:       {models.EmergencyStatusCancelled},
	models.EmergencyStatusDispatched: {models.EmergencyStatusCancelled},
	models.EmergencyStatusAccepted:   {models.EmergencyStatusOnTheWay, models.EmergencyStatusCancelled},
	models.EmergencyStatusOnTheWay:   {models.EmergencyStatusResolved, models.EmergencyStatusCancelled},
}

// CanTransition reports whether a manual move from one status to another is allowed.
func CanTransition(from, to string) bool {
	for _, next := range manualTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func isEmergencyStatus(status string) bool {
	switch status {
	case models.EmergencyStatusOpen,
		models.EmergencyStatusDispatched,
		models.EmergencyStatusAccepted,
		models.EmergencyStatusOnTheWay,
		models.EmergencyStatusResolved,
		models.EmergencyStatusCancelled:
		return true
	}
	return false
}

func isTerminalStatus(status string) bool {
	return status == models.EmergencyStatusResolved || status == models.EmergencyStatusCancelled
}
