package pipeline

import "net/http"

// Reason is the closed set of ways a request leaves the pipeline early.
// HealthCheck and OptionsPreflight are shortcuts that still answer 200.
type Reason int

const (
	Unknown Reason = iota
	HealthCheck
	OptionsPreflight
	InvalidJSON
	InvalidInput
	InvalidAPIKey
	NotFound
	InternalServerError
)

func (r Reason) String() string {
	switch r {
	case HealthCheck:
		return "health_check"
	case OptionsPreflight:
		return "options_preflight"
	case InvalidJSON:
		return "invalid_json"
	case InvalidInput:
		return "invalid_input"
	case InvalidAPIKey:
		return "invalid_api_key"
	case NotFound:
		return "not_found"
	case InternalServerError:
		return "internal_server_error"
	default:
		return "unknown"
	}
}

// Status returns the HTTP status code the reason maps to.
func (r Reason) Status() int {
	switch r {
	case HealthCheck, OptionsPreflight:
		return http.StatusOK
	case InvalidJSON, InvalidInput:
		return http.StatusBadRequest
	case InvalidAPIKey:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user facing message for error reasons.
// Reasons answering with a success body return "".
func (r Reason) Message() string {
	switch r {
	case HealthCheck, OptionsPreflight:
		return ""
	case InvalidJSON:
		return "Invalid JSON in request"
	case InvalidInput:
		return "Invalid input: URL is required and must be a valid YouTube URL"
	case InvalidAPIKey:
		return "Invalid API key"
	case NotFound:
		return "Not found"
	case InternalServerError:
		return "Internal server error"
	default:
		return "Unknown error"
	}
}
