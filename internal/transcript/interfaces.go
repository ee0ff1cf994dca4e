package transcript

import (
	"context"
	"time"
)

// PageFetcher returns fully rendered document content for a URL. The
// dialogue on source pages is injected by client-side script, so plain
// HTTP responses are not sufficient on their own; implementations that
// cannot render delegate via a fallback chain.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Discoverer enumerates candidate source documents inside a date window,
// newest first, deduplicated.
type Discoverer interface {
	Discover(ctx context.Context, since, until time.Time) ([]SourceReference, error)
}

// Store persists canonical records keyed by source URL.
type Store interface {
	Get(ctx context.Context, sourceURL string) (Record, bool, error)
	Upsert(ctx context.Context, rec Record) (created bool, err error)
	MaxEventDate(ctx context.Context) (time.Time, bool, error)
	List(ctx context.Context, filter ListFilter) ([]Record, error)
}

// ListFilter narrows Store.List results for the read-only query surface.
type ListFilter struct {
	Category string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// BlobStore archives raw rendered pages so corrupted records can be
// re-normalized without another fetch.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes record-level and run-level events downstream.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
