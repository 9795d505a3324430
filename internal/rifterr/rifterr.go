// Package rifterr defines the error taxonomy shared by the Coordinator,
// Daemon, and Client (spec §7).
package rifterr

import "errors"

// Sentinel errors for the wire/IPC error taxonomy. Components wrap these
// with fmt.Errorf("...: %w", ErrX) and unwrap with errors.Is.
var (
	ErrAuth            = errors.New("auth error")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound        = errors.New("not found")
	ErrNameConflict    = errors.New("name conflict")
	ErrStorage         = errors.New("storage error")
	ErrProtocol        = errors.New("protocol error")
	ErrLagged          = errors.New("lagged")
	ErrConflict        = errors.New("conflict detected")
	ErrDaemonUnreachable = errors.New("daemon unreachable")
)

// Code is the wire-level error code carried on Error frames and IPC responses.
type Code string

const (
	CodeAuth             Code = "AuthError"
	CodePermissionDenied Code = "PermissionDenied"
	CodeNotFound         Code = "NotFound"
	CodeNameConflict     Code = "NameConflict"
	CodeStorage          Code = "StorageError"
	CodeProtocol         Code = "ProtocolError"
	CodeLagged           Code = "Lagged"
	CodeConflict         Code = "ConflictDetected"
	CodeDaemonUnreachable Code = "DaemonUnreachable"
)

// codeFor maps a sentinel error to its wire code. Falls back to StorageError
// for unrecognized errors, matching the propagation policy in §7: storage
// errors are the catch-all surfaced only after retries are exhausted.
func codeFor(err error) Code {
	switch {
	case errors.Is(err, ErrAuth):
		return CodeAuth
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNameConflict):
		return CodeNameConflict
	case errors.Is(err, ErrProtocol):
		return CodeProtocol
	case errors.Is(err, ErrLagged):
		return CodeLagged
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrDaemonUnreachable):
		return CodeDaemonUnreachable
	default:
		return CodeStorage
	}
}

// Wire is the {code, message} shape sent on Error frames and IPC error responses.
type Wire struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToWire converts an error into its wire representation.
func ToWire(err error) Wire {
	if err == nil {
		return Wire{}
	}
	return Wire{Code: codeFor(err), Message: err.Error()}
}
