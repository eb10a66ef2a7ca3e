package dispatch

import "github.com/8agana/unified-intelligence/internal/apperr"

// TransportError is the uniform shape every handler error is mapped to
// before crossing the tool-call transport boundary.
type TransportError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MapError classifies err by apperr.Kind into the transport's two-bucket
// error shape: invalid_params for caller-fixable errors, internal_error
// for everything else.
func MapError(err error) TransportError {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindDuplicate, apperr.KindRateLimited:
		return TransportError{Code: "invalid_params", Message: err.Error()}
	case apperr.KindNotFound:
		return TransportError{Code: "invalid_params", Message: err.Error()}
	default:
		return TransportError{Code: "internal_error", Message: err.Error()}
	}
}
