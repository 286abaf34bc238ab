package types

type SessionState string

const (
	SessionPaused SessionState = "paused"
	SessionActive SessionState = "active"
)

type AlertState string

const (
	AlertNormal               AlertState = "normal"
	AlertEyesClosedWarning    AlertState = "eyes-closed"
	AlertFaceMissingWarning   AlertState = "face-missing"
	AlertFatigueBreakRequired AlertState = "fatigue-break-required"
)

// Priority orders simultaneous alerts. Higher wins; Normal is zero.
func (a AlertState) Priority() int {
	switch a {
	case AlertFaceMissingWarning:
		return 3
	case AlertEyesClosedWarning:
		return 2
	case AlertFatigueBreakRequired:
		return 1
	default:
		return 0
	}
}
