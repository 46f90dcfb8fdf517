package analyst

import (
	"errors"
	"fmt"
)

// ErrEmptyReply is wrapped in a DecodeError when a reply has no message content.
var ErrEmptyReply = errors.New("reply has no message content")

// RemoteRequestError reports a response with status >= 400.
type RemoteRequestError struct {
	StatusCode int
	RawBody    string
}

func (e *RemoteRequestError) Error() string {
	return fmt.Sprintf("analyst request failed status=%d body=%s", e.StatusCode, e.RawBody)
}

// DecodeError reports a successful status whose body is not a valid reply.
type DecodeError struct {
	RawBody string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode analyst response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
