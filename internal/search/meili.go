package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxLists = "lists_lists"
	idxItems = "lists_items"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. The
// returned value is usable even when the server is down; it reports
// unhealthy until the background check succeeds.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))
	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{uid: idxLists, filterable: []string{"spaceId"}, searchable: []string{"name"}},
		{uid: idxItems, filterable: []string{"spaceId", "listId", "completed"}, searchable: []string{"text"}},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idx.uid, PrimaryKey: "id"}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// spaceFilter renders `spaceId IN [...]` for the visible spaces.
func spaceFilter(spaceIDs []string) string {
	quoted := make([]string, len(spaceIDs))
	for i, id := range spaceIDs {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return "spaceId IN [" + strings.Join(quoted, ", ") + "]"
}

// Search queries the list and item indexes in one multi-search.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if len(q.SpaceIDs) == 0 {
		return nil, 0, nil
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	for _, ti := range []struct {
		uid  string
		rtyp ResultType
	}{
		{idxLists, ResultList},
		{idxItems, ResultItem},
	} {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              ti.uid,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			Filter:                []string{spaceFilter(q.SpaceIDs)},
		})
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxLists:
		return ResultList
	case idxItems:
		return ResultItem
	default:
		return ""
	}
}

// hitDoc is the union of list and item documents plus the highlighted
// copy Meilisearch returns under _formatted.
type hitDoc struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	ListID    string `json:"listId"`
	SpaceID   string `json:"spaceId"`
	Completed bool   `json:"completed"`
	Formatted struct {
		Name string `json:"name"`
		Text string `json:"text"`
	} `json:"_formatted"`
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	var doc hitDoc
	if raw, err := json.Marshal(hit); err == nil {
		if err := json.Unmarshal(raw, &doc); err != nil {
			log.Printf("search: decode hit: %v", err)
		}
	}

	r := Result{Type: rtyp, ID: doc.ID, SpaceID: doc.SpaceID}
	switch rtyp {
	case ResultList:
		r.ListID = doc.ID
		r.Title = doc.Name
		r.Snippet = snippet(doc.Formatted.Name, doc.Name)
	case ResultItem:
		r.ListID = doc.ListID
		r.Title = doc.Text
		r.Snippet = snippet(doc.Formatted.Text, doc.Text)
		r.Completed = doc.Completed
	}
	return r
}

func snippet(highlighted, plain string) string {
	if highlighted = strings.TrimSpace(highlighted); highlighted != "" {
		return highlighted
	}
	return plain
}

func (m *Meili) IndexList(l ListRecord) error {
	_, err := m.client.Index(idxLists).AddDocuments([]ListRecord{l}, nil)
	return err
}

func (m *Meili) IndexItem(i ItemRecord) error {
	_, err := m.client.Index(idxItems).AddDocuments([]ItemRecord{i}, nil)
	return err
}

func (m *Meili) DeleteList(id string) error {
	_, err := m.client.Index(idxLists).DeleteDocument(id, nil)
	return err
}

func (m *Meili) DeleteItems(ids []string) error {
	for _, id := range ids {
		if _, err := m.client.Index(idxItems).DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("delete item %s: %w", id, err)
		}
	}
	return nil
}

// IndexLists bulk-indexes lists.
func (m *Meili) IndexLists(lists []ListRecord) error {
	if len(lists) == 0 {
		return nil
	}
	_, err := m.client.Index(idxLists).AddDocuments(lists, nil)
	return err
}

// IndexItems bulk-indexes items.
func (m *Meili) IndexItems(items []ItemRecord) error {
	if len(items) == 0 {
		return nil
	}
	_, err := m.client.Index(idxItems).AddDocuments(items, nil)
	return err
}
