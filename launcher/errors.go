package launcher

import (
	"errors"
	"fmt"

	"github.com/jugelauncher/launcher/auth"
	"github.com/jugelauncher/launcher/download"
	"github.com/jugelauncher/launcher/launch"
	"github.com/jugelauncher/launcher/manifest"
)

// Kind is the caller-facing failure taxonomy. Every terminal failure
// carries one, plus the offending version id where applicable, so the
// surrounding application can render a specific message.
type Kind string

const (
	KindManifestUnavailable Kind = "ManifestUnavailable"
	KindMalformedManifest   Kind = "MalformedManifest"
	KindIntegrityMismatch   Kind = "IntegrityMismatch"
	// KindNetworkFailure is transient: retrying the whole install is safe
	// and resumes from whatever was already verified.
	KindNetworkFailure      Kind = "NetworkFailure"
	KindAuthExpired         Kind = "AuthExpired"
	KindAuthDenied          Kind = "AuthDenied"
	KindAuthProtocolError   Kind = "AuthProtocolError"
	KindLaunchConfigError   Kind = "LaunchConfigError"
	KindAlreadyRunning      Kind = "AlreadyRunning"
	KindProcessSpawnFailure Kind = "ProcessSpawnFailure"
)

// Error is a component failure translated for the caller.
type Error struct {
	Kind      Kind
	VersionID string
	Err       error
}

func (e *Error) Error() string {
	if e.VersionID != "" {
		return fmt.Sprintf("%v (%v): %v", e.Kind, e.VersionID, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from a translated error, or "" for nil.
func KindOf(err error) Kind {
	var translated *Error
	if errors.As(err, &translated) {
		return translated.Kind
	}
	return ""
}

func translate(versionID string, err error) error {
	if err == nil {
		return nil
	}
	var translated *Error
	if errors.As(err, &translated) {
		return err
	}
	return &Error{Kind: classify(err), VersionID: versionID, Err: err}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, manifest.ErrUnavailable):
		return KindManifestUnavailable
	case errors.Is(err, manifest.ErrMalformed):
		return KindMalformedManifest
	case errors.Is(err, download.ErrIntegrityMismatch):
		return KindIntegrityMismatch
	case errors.Is(err, auth.ErrExpired):
		return KindAuthExpired
	case errors.Is(err, auth.ErrDenied):
		return KindAuthDenied
	case errors.Is(err, auth.ErrProtocol):
		return KindAuthProtocolError
	case errors.Is(err, launch.ErrLaunchConfig):
		return KindLaunchConfigError
	case errors.Is(err, launch.ErrAlreadyRunning):
		return KindAlreadyRunning
	case errors.Is(err, launch.ErrProcessSpawn):
		return KindProcessSpawnFailure
	default:
		// Anything left is transport-level and safe to retry.
		return KindNetworkFailure
	}
}
