package service

import "errors"

// Domain error kinds surfaced to collaborators. Validation failures are
// never retried internally; transport failures bubble up from the
// transport package and are safe for the caller to retry.
var (
	// ErrInvalidURL rejects a target that is not an absolute URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrSizeExceeded rejects an upload or chunk over the configured limit.
	ErrSizeExceeded = errors.New("size limit exceeded")
	// ErrIncomplete rejects finalize/read of a file whose stored bytes do
	// not match the declared size.
	ErrIncomplete = errors.New("upload incomplete")
	// ErrAliasTaken rejects a custom alias that is already assigned.
	ErrAliasTaken = errors.New("alias already taken")
	// ErrExhaustedCodeSpace fires when the bounded redraw loop cannot find
	// a free code; it indicates the code space is sized too small.
	ErrExhaustedCodeSpace = errors.New("short code space exhausted")
	// ErrNotFound covers missing links and files.
	ErrNotFound = errors.New("not found")
	// ErrCorruptFile fires when stored chunk metadata contradicts the file
	// record; it is non-retryable and needs operator attention.
	ErrCorruptFile = errors.New("corrupt file object")
	// ErrConcurrentUpload rejects appends that break the next-expected-index
	// invariant, including a second uploader racing on the same file id.
	ErrConcurrentUpload = errors.New("concurrent upload conflict")
	// ErrUserBanned rejects operations from banned users.
	ErrUserBanned = errors.New("user is banned")
)
