package collector

import "context"

// PageFetcher returns raw page bytes for a URL, consulting its cache unless force is set.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, force bool) ([]byte, error)
}

// tableSelector selects the data table on both the listing and the history pages.
const tableSelector = "table.table"
