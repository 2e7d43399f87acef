package detector

import (
	"fmt"
	"net/http"
)

const GenericFailure = "Prediction failed"

// ValidationError is raised locally; the image never reaches the wire.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("request failed: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError carries the service's detail message, or GenericFailure.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string { return e.Message }

func (e *ServerError) StatusText() string {
	return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
}

type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("malformed response: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }
