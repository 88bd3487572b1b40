package mock

import "errors"

// Mock package errors.
var (
	// ErrStartFailed is returned by a Broker configured to fail on Start.
	ErrStartFailed = errors.New("mock broker: start failed")

	// ErrPublishFailed is a canned publisher failure.
	ErrPublishFailed = errors.New("mock publisher: exit status 1")
)
