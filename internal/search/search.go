package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultList ResultType = "list"
	ResultItem ResultType = "item"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ListID    string     `json:"listId"`
	SpaceID   string     `json:"spaceId"`
	Completed bool       `json:"completed,omitempty"`
}

// Query describes a search request. SpaceIDs restricts hits to the spaces
// the caller can see; an empty set matches nothing.
type Query struct {
	Text       string
	FilterType ResultType // empty = lists and items
	SpaceIDs   []string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexList(l ListRecord) error
	IndexItem(i ItemRecord) error
	DeleteList(id string) error
	DeleteItems(ids []string) error
}

// ListRecord is the data we index for a list.
type ListRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	SpaceID string `json:"spaceId"`
}

// ItemRecord is the data we index for an item.
type ItemRecord struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	ListID    string `json:"listId"`
	SpaceID   string `json:"spaceId"`
	Completed bool   `json:"completed"`
}
