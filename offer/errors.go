package offer

import "errors"

var (
	// ErrNotIndividualAccount is returned by New when the partner id does
	// not address a person (spec.md §4.A).
	ErrNotIndividualAccount = errors.New("offer: partner is not an individual account")

	// ErrAlreadySent is returned by every pre-send mutator once the
	// offer has an id (spec.md §3, §4.A).
	ErrAlreadySent = errors.New("offer: cannot mutate an offer that already has an id")
)
