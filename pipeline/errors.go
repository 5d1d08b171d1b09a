package pipeline

import "errors"

// ErrNoBrowser is returned by URL-based operations when the service was
// built without a browser manager.
var ErrNoBrowser = errors.New("pipeline: no browser configured")

// ErrInvalidInput is returned when a request fails validation.
var ErrInvalidInput = errors.New("pipeline: invalid input")
