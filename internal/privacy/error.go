package privacy

// WrapError returns err with broker and Frigate addresses scrubbed from its
// message. errors.Is and errors.As still reach the original. Errors with
// nothing to scrub are returned unchanged.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	msg := ScrubMessage(err.Error())
	if msg == err.Error() {
		return err
	}
	return &scrubbedError{msg: msg, err: err}
}

type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }
