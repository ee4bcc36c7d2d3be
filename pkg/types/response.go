package types

// SuccessEnvelope wraps every 2xx JSON body the API writes.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// Envelope is the decode side of SuccessEnvelope for API clients that know
// the payload type.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// APIError is the public shape of a failed request. Details only appear for
// codes that allow them.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
