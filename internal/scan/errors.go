package scan

import "fmt"

// Kind identifies one failure class from the validation pipeline so callers
// can message "code expired, rescan" differently from "tampered".
type Kind string

const (
	KindBadEvidence        Kind = "bad_evidence"
	KindSessionNotFound    Kind = "session_not_found"
	KindSessionTerminal    Kind = "session_terminal"
	KindTokenUnknown       Kind = "token_unknown"
	KindTokenExpired       Kind = "token_expired"
	KindSignatureMismatch  Kind = "signature_mismatch"
	KindAlreadyRecorded    Kind = "already_recorded"
	KindEvidenceRejected   Kind = "evidence_rejected"
	KindStorageUnavailable Kind = "storage_unavailable"
)

// Error is the engine's caller-facing failure. Detail is safe to render; it
// never carries session secrets or another session's token state.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func reject(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// KindOf extracts the kind from err, or empty when err is not a scan error.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
