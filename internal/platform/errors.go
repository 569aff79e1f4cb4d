// Package platform defines the error taxonomy shared by platform
// collaborators and the components that drive them.
package platform

import "errors"

var (
	// ErrAuth means the platform rejected our credentials. Fatal to the
	// current cycle but never to the process, so a human can rotate
	// credentials without losing the schedule.
	ErrAuth = errors.New("platform rejected credentials")

	// ErrRateLimited means the platform imposed its own rate limit,
	// distinct from this system's caps.
	ErrRateLimited = errors.New("platform rate limit hit")

	// ErrTransient covers connection failures and 5xx responses. Worth a
	// single retry with backoff.
	ErrTransient = errors.New("transient platform failure")

	// ErrGeneration means content or reply generation failed.
	ErrGeneration = errors.New("content generation failed")
)
