package scheduler

import "errors"

var (
	// ErrPostNotFound is returned when the post id resolves to nothing.
	ErrPostNotFound = errors.New("post not found")

	// ErrJobNotFound is returned when an operation needs an active
	// scheduled job and none exists (never scheduled, already fired, or
	// cancelled).
	ErrJobNotFound = errors.New("no scheduled job for post")

	// ErrAlreadyPublished rejects publish attempts on a published post.
	ErrAlreadyPublished = errors.New("post is already published")

	// ErrInvalidTransition rejects operations not allowed from the post's
	// current status.
	ErrInvalidTransition = errors.New("operation not allowed in current post status")

	// ErrInvalidStatus rejects status strings outside the enumeration.
	ErrInvalidStatus = errors.New("invalid post status")

	// ErrInvalidTime rejects missing or unparseable schedule times.
	ErrInvalidTime = errors.New("invalid schedule time")

	// ErrNotPublished is returned when a remote operation needs a
	// platform-assigned id and the post has none.
	ErrNotPublished = errors.New("post has no external id")
)
