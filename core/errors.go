package core

import "errors"

var (
	// ErrDuplicateIdentity rejects an admission whose identity already
	// maps to a live receiver. No state is mutated.
	ErrDuplicateIdentity = errors.New("receiver identity already connected")

	// ErrAuthenticationRejected rejects an admission the authenticator
	// refused. The constructed receiver is discarded, registry untouched.
	ErrAuthenticationRejected = errors.New("authentication rejected")
)
