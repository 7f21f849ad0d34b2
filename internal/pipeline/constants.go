package pipeline

// Defaults for fetching. Pagination is followed by the pipeline, one page
// per request.
const (
	// DefaultPageLimit is sent as "limit" on list requests.
	DefaultPageLimit = 100

	// DefaultMaxPages bounds how many pages are followed per listing.
	DefaultMaxPages = 1000
)
