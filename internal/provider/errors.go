package provider

import (
	"errors"
	"fmt"

	"github.com/plannerkit/planner-sync/internal/restclient"
)

// Error kinds surfaced to the engine and the CLI.
// Use errors.Is to classify.
var (
	// ErrNotAuthenticated means no valid credential exists for the
	// provider. Connect (or reconnect) before retrying.
	ErrNotAuthenticated = errors.New("provider: not authenticated")

	// ErrAuthExpired means a remote call returned 401. The stored
	// credential has already been cleared as a side effect; the user must
	// re-authenticate.
	ErrAuthExpired = errors.New("provider: authentication expired")

	// ErrUnavailable means a remote call failed with a non-401 error.
	ErrUnavailable = errors.New("provider: unavailable")

	// ErrInvalidProvider means the requested provider is unknown or not
	// configured.
	ErrInvalidProvider = errors.New("provider: invalid provider")
)

// RemoteError pairs an error kind sentinel with the underlying transport
// cause, so both errors.Is(err, ErrAuthExpired) and
// errors.Is(err, restclient.ErrUnauthorized) hold.
type RemoteError struct {
	Kind  error
	Cause error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

func (e *RemoteError) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}

// WrapRemote maps a transport-level failure to a provider error kind,
// clearing the stored credential on 401. Adapters route every non-404
// remote failure through this.
func WrapRemote(err error, creds *Credentials) error {
	// A missing credential is already classified; nothing to map.
	if errors.Is(err, ErrNotAuthenticated) {
		return err
	}

	if errors.Is(err, restclient.ErrUnauthorized) {
		creds.purge()

		return &RemoteError{Kind: ErrAuthExpired, Cause: err}
	}

	return &RemoteError{Kind: ErrUnavailable, Cause: err}
}
