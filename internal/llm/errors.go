package llm

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyResponse      = errors.New("llm: model returned an empty response")
	ErrMissingCredential  = errors.New("llm: api credential is not set")
	ErrUnknownProvider    = errors.New("llm: unknown provider")
	ErrNoScriptedResponse = errors.New("llm: fake client has no scripted response left")
)

// ConfigError means the client cannot be used with the current settings.
// Retrying without changing the configuration will fail the same way.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "llm configuration: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// RequestError collapses every failure of the model call itself: network,
// authentication, rate limiting and empty replies.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return "llm request failed: " + e.Err.Error() }
func (e *RequestError) Unwrap() error { return e.Err }

// PermanentError marks provider errors that a transport retry cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func missingCredential(key string) error {
	return &ConfigError{Err: fmt.Errorf("%w: export %s or add it to .env", ErrMissingCredential, key)}
}

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// IsPermanent reports whether err should stop transport-level retries.
func IsPermanent(err error) bool {
	var pErr *PermanentError
	return errors.As(err, &pErr) || IsConfigError(err)
}
