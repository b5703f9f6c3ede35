package errors

import sterrors "errors"

var (
	ErrUnregisteredToken   = sterrors.New("exclave: token is not registered")
	ErrUnregisteredService = sterrors.New("exclave: service name is not registered")
	ErrReadOnlyState       = sterrors.New("exclave: state is read-only: mutations must go through the service's own methods")
	ErrDisposed            = sterrors.New("exclave: disposed")
	ErrCallTimeout         = sterrors.New("exclave: call timed out")
	ErrInitTimeout         = sterrors.New("exclave: worker initialization timed out")
	ErrProxyDemoted        = sterrors.New("exclave: proxy demoted to local fallback")
	ErrMethodNotFound      = sterrors.New("exclave: no method for action")
	ErrLinkUnavailable     = sterrors.New("exclave: link unavailable")
	ErrConstructorRequired = sterrors.New("exclave: service constructor is required")
	ErrNameRequired        = sterrors.New("exclave: service name is required")
	ErrNotBound            = sterrors.New("exclave: service base is not bound to an implementation")
)

// RemoteError carries a failure produced by a relocated service
// instance, as reported over the boundary. Only the message crosses;
// callers match the class with errors.As.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return "exclave: remote call failed: " + e.Msg
}

// ConfigValidationError wraps the combined problems reported by
// Config.Validate so callers can branch on configuration failures as a
// class while still unwrapping individual causes.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "exclave: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err in a ConfigValidationError, or
// returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
