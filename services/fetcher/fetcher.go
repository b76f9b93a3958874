// Package fetcher adapts the external pricing providers into CachedAsset records.
package fetcher

import (
	"context"
	"errors"

	"market_pulse_backend/models"
)

var (
	// ErrUpstream wraps transport failures, non-2xx statuses and malformed bodies
	ErrUpstream = errors.New("upstream request failed")
	// ErrTooFewResults means a cycle resolved fewer assets than its minimum
	ErrTooFewResults = errors.New("too few valid results")
	// ErrNotFound means the provider has no usable quote for the asset
	ErrNotFound = errors.New("asset not found upstream")
)

// Fetcher loads quotes for one asset class
type Fetcher interface {
	AssetClass() models.AssetClass
	// FetchAll loads the full tracked universe, sorted by market cap
	FetchAll(ctx context.Context) ([]models.CachedAsset, error)
	// FetchOne loads a single asset by id
	FetchOne(ctx context.Context, id string) (*models.CachedAsset, error)
}

// chunkSlice splits a slice into chunks of specified size
func chunkSlice(slice []string, chunkSize int) [][]string {
	if chunkSize <= 0 {
		chunkSize = len(slice)
	}
	var chunks [][]string
	for i := 0; i < len(slice); i += chunkSize {
		end := i + chunkSize
		if end > len(slice) {
			end = len(slice)
		}
		chunks = append(chunks, slice[i:end])
	}
	return chunks
}
