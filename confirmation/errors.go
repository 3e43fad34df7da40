package confirmation

import (
	"errors"
	"fmt"
)

// ErrNotLoggedIn mirrors spec.md §7's NotLoggedIn kind: the session
// expired while we were in the confirmation flow.
var ErrNotLoggedIn = errors.New("confirmation: not logged in")

// ErrConfirmationNotFound is spec.md §7's ConfirmationNotFound: no
// confirmation entry authorizes the requested offer, even after one
// retry fetch.
var ErrConfirmationNotFound = errors.New("confirmation: no entry found for offer")

// ErrConfirmationFailed is spec.md §7's ConfirmationFailed(msg): the
// remote rejected an allow/cancel or an empty-list page explained why
// nothing is pending.
type ErrConfirmationFailed struct {
	Message string
}

func (e ErrConfirmationFailed) Error() string {
	return fmt.Sprintf("confirmation: %s", e.Message)
}

// ErrMalformedResponse is raised when a required HTML attribute or
// child text is absent from a parsed list entry (spec.md §4.E).
type ErrMalformedResponse struct {
	Attr string
}

func (e ErrMalformedResponse) Error() string {
	return fmt.Sprintf("confirmation: malformed response, missing %s", e.Attr)
}
