package dtn

import "errors"

// ErrNotConnected is returned by Send when no stream to the daemon is up.
// Callers keep the spool entry and retry on the next drain.
var ErrNotConnected = errors.New("stream client not connected")

// TransportError wraps a failure talking to DTNd. Temporary errors
// (connection refused, EOF, reset) drive the reconnection backoff; permanent
// errors (protocol violations, malformed responses) are logged and the
// offending item is skipped.
type TransportError struct {
	Op        string
	Temporary bool
	Err       error
}

func (e *TransportError) Error() string {
	return "dtnd " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTemporary reports whether err is a transient transport failure that
// should trigger a reconnect rather than a skip.
func IsTemporary(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Temporary
	}
	return false
}
