// Package errs defines the error taxonomy shared across the bot.
// Every error surfaced from a component is one of these kinds so callers
// can decide with errors.As/errors.Is whether to retry, halt, or just log.
package errs

import "fmt"

// Transient wraps an error that is expected to clear on its own — a
// dropped connection, a rate limit, a momentary 5xx. Callers should
// retry with backoff rather than treat it as fatal.
type Transient struct {
	Op  string
	Err error
}

func (e *Transient) Error() string { return fmt.Sprintf("%s: transient: %v", e.Op, e.Err) }
func (e *Transient) Unwrap() error { return e.Err }

// NewTransient wraps err as a Transient error tagged with the operation
// that produced it.
func NewTransient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Transient{Op: op, Err: err}
}

// Logical is a rejection the venue or the bot's own validation returned
// for a specific, well-known reason — not a bug, not worth retrying
// as-is (the caller must change the request first).
type Logical struct {
	Code string
	Msg  string
}

func (e *Logical) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Msg) }

// NewLogical builds a Logical error.
func NewLogical(code, msg string) error {
	return &Logical{Code: code, Msg: msg}
}

// Auth wraps a failure in the L1/L2 signing or credential-derivation path.
type Auth struct {
	Op  string
	Err error
}

func (e *Auth) Error() string { return fmt.Sprintf("auth: %s: %v", e.Op, e.Err) }
func (e *Auth) Unwrap() error { return e.Err }

// NewAuth wraps err as an Auth error.
func NewAuth(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Auth{Op: op, Err: err}
}

// Config signals a malformed or missing configuration value discovered
// at startup or on reload.
type Config struct {
	Field string
	Msg   string
}

func (e *Config) Error() string { return fmt.Sprintf("config: %s: %s", e.Field, e.Msg) }

// NewConfig builds a Config error.
func NewConfig(field, msg string) error {
	return &Config{Field: field, Msg: msg}
}

// Shutdown is returned by long-running loops when they stop because the
// caller's context was cancelled, distinguishing a clean exit from a
// genuine failure.
type Shutdown struct {
	Component string
}

func (e *Shutdown) Error() string { return fmt.Sprintf("%s: shutting down", e.Component) }

// NewShutdown builds a Shutdown error for the named component.
func NewShutdown(component string) error {
	return &Shutdown{Component: component}
}
