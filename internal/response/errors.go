package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrAuthDisabled       ErrCode = "AUTH_DISABLED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidIndex   ErrCode = "INVALID_INDEX"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Catalogue ─────────────────────────────────────────────────────
	ErrNotFound       ErrCode = "NOT_FOUND"
	ErrNoDegree       ErrCode = "NO_DEGREE_SELECTED"
	ErrNoCourses      ErrCode = "NO_COURSES"
	ErrPortalUpstream ErrCode = "PORTAL_UPSTREAM_ERROR"

	// ─── Schedule ──────────────────────────────────────────────────────
	ErrShiftConflict ErrCode = "SHIFT_CONFLICT"
	ErrUnknownShift  ErrCode = "UNKNOWN_SHIFT"

	// ─── Enrollment ────────────────────────────────────────────────────
	ErrPortalNotReady ErrCode = "PORTAL_NOT_READY"
	ErrPortalBusy     ErrCode = "PORTAL_BUSY"
	ErrPortalLogin    ErrCode = "PORTAL_LOGIN_FAILED"
	ErrRunActive      ErrCode = "RUN_ALREADY_ACTIVE"
	ErrNoActiveRun    ErrCode = "NO_ACTIVE_RUN"
	ErrNoGoals        ErrCode = "NO_GOALS"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Wrong control password."
	case ErrAuthDisabled:
		return "Control login is disabled until CONTROL_PASSWORD_HASH is set."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or expired."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Check the request fields."
	case ErrInvalidIndex:
		return "Goal index is not a valid position in the queue."
	case ErrInvalidPayload:
		return "The request payload is invalid."

	// ─── Catalogue ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrNoDegree:
		return "Select a degree first."
	case ErrNoCourses:
		return "None of the requested courses is offered."
	case ErrPortalUpstream:
		return "The Fenix API could not be reached."

	// ─── Schedule ──────────────────────────────────────────────────────
	case ErrShiftConflict:
		return "The shift overlaps a shift already chosen for another course."
	case ErrUnknownShift:
		return "The shift does not exist for this course and category."

	// ─── Enrollment ────────────────────────────────────────────────────
	case ErrPortalNotReady:
		return "Log into the portal before starting a run."
	case ErrPortalBusy:
		return "The portal session is in use by a run."
	case ErrPortalLogin:
		return "Portal login failed."
	case ErrRunActive:
		return "An enrollment run is already active."
	case ErrNoActiveRun:
		return "No enrollment run is active."
	case ErrNoGoals:
		return "No registration goals are queued."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "Unexpected error."
	}
}
