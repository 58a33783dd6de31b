package domain

import "errors"

// ErrMarkupRejected is returned by a sender when the platform refused the
// message because of its formatting entities. Resending as plain text
// is expected to succeed.
var ErrMarkupRejected = errors.New("markup rejected")
