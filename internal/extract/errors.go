// Package extract implements the structured-output pipeline and the
// citation-guided two-stage extraction protocol on top of it.
package extract

import (
	"context"
	"errors"
	"fmt"
)

// RepairExhaustedError reports that every output stage and every repair
// attempt failed to produce a usable record.
type RepairExhaustedError struct {
	ResourceType string
	Attempts     int
	Last         error
}

func (e *RepairExhaustedError) Error() string {
	return fmt.Sprintf("extract: %s output exhausted after %d repair attempts: %v", e.ResourceType, e.Attempts, e.Last)
}

func (e *RepairExhaustedError) Unwrap() error { return e.Last }

// IsWindowTimeout reports whether err was caused by windowCtx hitting its
// deadline, as opposed to a parent context being cancelled.
func IsWindowTimeout(windowCtx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) &&
		errors.Is(windowCtx.Err(), context.DeadlineExceeded)
}
