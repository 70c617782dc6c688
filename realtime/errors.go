package realtime

import "errors"

// Handshake and session errors. The manager wraps verifier and directory
// failures into these so callers can match with errors.Is; the specific
// cause is recorded to the audit sink and never returned to the client.
var (
	// ErrNoToken means the handshake presented no credential.
	ErrNoToken = errors.New("no credential presented")
	// ErrNoProjectID means the handshake named no project.
	ErrNoProjectID = errors.New("no project id presented")
	// ErrRateLimited means the origin exhausted its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformedCredential means the credential failed verification for
	// any reason other than expiry.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrExpiredCredential means the credential is expired or older than
	// the maximum allowed age.
	ErrExpiredCredential = errors.New("expired credential")
	// ErrIdentityNotFound means the verified subject has no user record.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrProjectNotFound means the named project has no record.
	ErrProjectNotFound = errors.New("project not found")
	// ErrNotAMember means the user is neither owner nor member of the
	// project.
	ErrNotAMember = errors.New("not a project member")
	// ErrPermissionDenied means the session lacks the capability for one
	// action. It is never connection-fatal.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRevalidationFailed means a periodic credential re-check failed.
	// It is connection-fatal.
	ErrRevalidationFailed = errors.New("revalidation failed")
)

// PublicMessage maps err to the short refusal text a caller may see. The
// text never varies with the specific cause; that detail lives only in the
// audit sink.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Permission denied."
	case errors.Is(err, ErrRevalidationFailed):
		return "Session terminated."
	default:
		return "Connection refused."
	}
}

// reasonCode is the machine-readable label recorded to the audit sink and
// used as a metrics dimension.
func reasonCode(err error) string {
	switch {
	case errors.Is(err, ErrNoToken):
		return "no_token"
	case errors.Is(err, ErrNoProjectID):
		return "no_project_id"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrMalformedCredential):
		return "malformed_credential"
	case errors.Is(err, ErrExpiredCredential):
		return "expired_credential"
	case errors.Is(err, ErrIdentityNotFound):
		return "identity_not_found"
	case errors.Is(err, ErrProjectNotFound):
		return "project_not_found"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrRevalidationFailed):
		return "revalidation_failed"
	default:
		return "internal"
	}
}
