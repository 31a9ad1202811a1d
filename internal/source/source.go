// Package source fetches raw activity documents from the crew's record stores.
package source

import (
	"context"

	"github.com/redrabbit14-cmyk/my-running-dash/internal/models"
)

// RecordSource returns a snapshot of raw records. Implementations must be
// safe for concurrent use.
type RecordSource interface {
	Name() string
	Fetch(ctx context.Context) ([]models.RawRecord, error)
}

// IDField holds the upstream document identifier on each fetched record.
const IDField = "_id"
