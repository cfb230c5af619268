package errorsx

import (
	"errors"
	"fmt"
)

// ReasonedError tags an error with the code that logs, metrics and the
// error reporter group failures by.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error { return e.Err }

// New returns a tagged error with no underlying cause.
func New(reason ReasonCode, msg string) error {
	return ReasonedError{Err: errors.New(msg), Reason: reason}
}

// Wrap tags err with reason. The innermost tag wins, so an error that
// already carries a reason comes back unchanged.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if _, tagged := reasonOf(err); tagged {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Wrapf prefixes err with a formatted message, then tags it like Wrap.
func Wrapf(err error, reason ReasonCode, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err), reason)
}

// Reason returns the tag carried anywhere in err's chain, or ReasonUnknown.
func Reason(err error) ReasonCode {
	r, _ := reasonOf(err)
	return r
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

func reasonOf(err error) (ReasonCode, bool) {
	var re ReasonedError
	if err != nil && errors.As(err, &re) {
		return re.Reason, true
	}
	return ReasonUnknown, false
}
