package errors

import (
	"encoding/json"
	"errors"
)

// Representation of errors that reach an operator. These are divided
// into a small number of categories, essentially distinguished by
// whose fault the error is; i.e., is this error:
//  - a problem with the store or registry, so worth looking at the service?
//  - not going to work until the user takes some other action, e.g., fixing config?
type Error struct {
	Type Type
	// a message that can be printed out for the user
	Help string `json:"help"`
	// the underlying error that can be e.g., logged for developers to look at
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

// Unwrap lets errors.Is and errors.As see the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

type Type string

const (
	// The operation looked fine on paper, but something went wrong
	// in the store or registry
	Server Type = "server"
	// The thing you mentioned, whatever it is, just doesn't exist
	Missing Type = "missing"
	// The operation was well-formed, but you asked for something that
	// can't happen at present (e.g., a run that is not in progress)
	User Type = "user"
)

func IsMissing(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Type == Missing {
		return true
	}
	return false
}

func IsUser(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Type == User {
		return true
	}
	return false
}

func (e *Error) MarshalJSON() ([]byte, error) {
	var errMsg string
	if e.Err != nil {
		errMsg = e.Err.Error()
	}
	jsonable := &struct {
		Type string `json:"type"`
		Help string `json:"help"`
		Err  string `json:"error,omitempty"`
	}{
		Type: string(e.Type),
		Help: e.Help,
		Err:  errMsg,
	}
	return json.Marshal(jsonable)
}

func (e *Error) UnmarshalJSON(data []byte) error {
	jsonable := &struct {
		Type string `json:"type"`
		Help string `json:"help"`
		Err  string `json:"error,omitempty"`
	}{}
	if err := json.Unmarshal(data, &jsonable); err != nil {
		return err
	}
	e.Type = Type(jsonable.Type)
	e.Help = jsonable.Help
	if jsonable.Err != "" {
		e.Err = errors.New(jsonable.Err)
	}
	return nil
}

func CoverAllError(err error) *Error {
	return &Error{
		Type: User,
		Err:  err,
		Help: `Error: ` + err.Error() + `

We don't have a specific help message for the error above.

The store or registry may be unavailable, or the credentials given may
not have the permissions needed. Re-run with the same arguments once
the service is reachable; the lock and the admission gate re-read all
state on every attempt, so retrying is safe.
`,
	}
}
