package fetch

import (
	"errors"
	"fmt"
)

// Kind distinguishes the two caller-visible fetch failure classes: the source
// rejecting the forwarded credential, and everything else.
type Kind int

const (
	KindDownloadFailed Kind = iota
	KindAuthFailed
)

// Error is a typed fetch failure. Status carries the remote HTTP status when
// one was received; Location carries the redirect target of an unfollowed 3xx.
type Error struct {
	Kind     Kind
	Status   int
	URL      string
	Location string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAuthFailed:
		return fmt.Sprintf("fetch %s: auth failed: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsAuthFailed reports whether err is a fetch failure caused by the remote
// source rejecting the forwarded credential.
func IsAuthFailed(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe != nil && fe.Kind == KindAuthFailed
}

// IsDownloadFailed reports whether err is a non-auth fetch failure.
func IsDownloadFailed(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe != nil && fe.Kind == KindDownloadFailed
}
