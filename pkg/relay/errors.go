package relay

import "fmt"

// Error is a sentinel error type for relay failures.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrInvalidRouteConfig indicates a route that cannot be registered.
	ErrInvalidRouteConfig = Error("invalid route configuration")
	// ErrUnknownRoute indicates a Forward against an unregistered route.
	ErrUnknownRoute = Error("unknown relay route")
)

// TimeoutError indicates the upstream did not answer within the
// route's deadline.
type TimeoutError struct {
	Route    string
	Endpoint string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("relay timeout: route %s endpoint %s", e.Route, e.Endpoint)
}

// NetworkError indicates the request never produced an HTTP response.
type NetworkError struct {
	Route string
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("relay network error: route %s: %v", e.Route, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError indicates the upstream answered with a non-2xx status.
type UpstreamError struct {
	Route  string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("relay upstream error: route %s returned %d", e.Route, e.Status)
}
