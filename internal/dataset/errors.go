package dataset

import "errors"

var (
	// ErrDatasetNotFound is returned when the dataset source does not exist.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrSchemaViolation is returned when required columns are missing.
	ErrSchemaViolation = errors.New("dataset schema violation")
	// ErrMalformedRow is returned when a row value cannot be parsed.
	ErrMalformedRow = errors.New("malformed dataset row")
	// ErrDatasetUnavailable is returned by every access after a failed load.
	ErrDatasetUnavailable = errors.New("dataset unavailable")
)
