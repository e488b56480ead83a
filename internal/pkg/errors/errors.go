package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing corpus records.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedModality marks a URI whose extension maps to no known modality.
	ErrUnsupportedModality = errors.New("unsupported modality")
	// ErrEmptyText marks an embedding request with no text; callers must never
	// embed a record whose canonical text is absent.
	ErrEmptyText = errors.New("empty text")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)
