package mmclient

import "fmt"

// HTTPError is a non-200 response from the server. Message and Detail
// carry the server's error JSON when it sent one.
type HTTPError struct {
	Status     int
	StatusText string
	Message    string
	Detail     string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("server returned %d %s", e.Status, e.StatusText)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// IsAuth reports whether the response indicates a rejected credential
// or token.
func (e *HTTPError) IsAuth() bool {
	return e.Status == 401 || e.Status == 403
}

// AuthError is a failed login or a rejected token. It is fatal for the
// whole run.
type AuthError struct {
	Login string
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %q: %v", e.Login, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
