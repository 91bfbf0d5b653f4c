// Package store persists interview reports.
package store

import (
	"context"
	"errors"

	"github.com/vango-go/vai-interview/pkg/core/report"
)

// ErrNotFound is returned when a report does not exist.
var ErrNotFound = errors.New("report not found")

// DefaultListLimit caps ListReports when limit <= 0.
const DefaultListLimit = 50

// Store defines report persistence.
type Store interface {
	SaveReport(ctx context.Context, r report.Report) error
	GetReport(ctx context.Context, id string) (report.Report, error)
	// ListReports returns the newest reports first.
	ListReports(ctx context.Context, limit int) ([]report.Report, error)
	Ping(ctx context.Context) error
	Close()
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}
	return limit
}
