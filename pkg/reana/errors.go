package reana

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnexpectedResponse indicates a response body that could not be interpreted.
var ErrUnexpectedResponse = errors.New("unexpected response from execution service")

// RemoteError is a failed call to the execution service.
type RemoteError struct {
	Op         string // Operation being performed (e.g., "Submit", "Status")
	StatusCode int    // HTTP status, 0 when the request did not complete
	Message    string // Message reported by the service
	Err        error  // Underlying error
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("execution service %s: %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("execution service %s: %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("execution service %s: %v", e.Op, e.Err)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemoteError checks if an error came from the execution service.
func IsRemoteError(err error) bool {
	var remoteErr *RemoteError

	return errors.As(err, &remoteErr)
}

// IsNotFound checks if the execution service answered 404.
func IsNotFound(err error) bool {
	var remoteErr *RemoteError

	return errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound
}
