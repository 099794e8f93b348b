package entity

import "fmt"

// ErrorKind classifies the failures the redaction pipeline can surface.
type ErrorKind string

const (
	// ErrSourceUnavailable means the input video is missing or cannot be
	// decoded. Fatal to the run, never retried within the pipeline.
	ErrSourceUnavailable ErrorKind = "source_unavailable"
	// ErrNoRegions means a mosaic pass was requested with zero resolvable
	// regions.
	ErrNoRegions ErrorKind = "no_regions"
	// ErrInvalidRegionData means the region JSON was malformed or carried
	// out-of-range values.
	ErrInvalidRegionData ErrorKind = "invalid_region_data"
	// ErrEncodeFailure means the output writer could not be opened or a
	// frame write failed; any partial output file is invalid.
	ErrEncodeFailure ErrorKind = "encode_failure"
)

// VideoProcessingError is the single error family raised by the pipeline
// core. Callers branch on Kind, not on wrapped low-level errors.
type VideoProcessingError struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

func (e *VideoProcessingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Path, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *VideoProcessingError) Unwrap() error { return e.Err }

// NewProcessingError wraps err as a pipeline failure of the given kind.
func NewProcessingError(kind ErrorKind, op, path string, err error) *VideoProcessingError {
	return &VideoProcessingError{Kind: kind, Op: op, Path: path, Err: err}
}

// IsProcessingKind reports whether err is a VideoProcessingError of kind.
func IsProcessingKind(err error, kind ErrorKind) bool {
	var perr *VideoProcessingError
	for err != nil {
		if e, ok := err.(*VideoProcessingError); ok {
			perr = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return perr != nil && perr.Kind == kind
}
