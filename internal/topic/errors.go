package topic

import "errors"

// Validation errors for topics and filters.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrEmpty is returned for an empty topic or filter.
	ErrEmpty = errors.New("topic: cannot be empty")

	// ErrTooLong is returned when a topic exceeds the 65535 byte wire limit.
	ErrTooLong = errors.New("topic: exceeds maximum length")

	// ErrInvalidEncoding is returned for topics that are not valid UTF-8 or contain NUL.
	ErrInvalidEncoding = errors.New("topic: invalid encoding")

	// ErrWildcardInTopic is returned when a publish topic contains + or #.
	ErrWildcardInTopic = errors.New("topic: wildcards not allowed in topic name")

	// ErrMisplacedWildcard is returned when + or # does not occupy a whole
	// segment, or # is not the final segment.
	ErrMisplacedWildcard = errors.New("topic: misplaced wildcard")
)
