package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili Engine
	pgfts Searcher
}

// Engine is the primary search backend: searchable and indexable.
type Engine interface {
	Searcher
	Indexer
	IndexLists(lists []ListRecord) error
	IndexItems(items []ItemRecord) error
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured; pgfts may be nil to disable the fallback.
func NewService(meili Engine, pgfts Searcher) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

func (s *Service) primary() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if len(q.SpaceIDs) == 0 {
		return Response{Results: []Result{}, Query: q.Text}
	}
	if s.primary() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexList indexes a list (fire-and-forget).
func (s *Service) IndexList(l ListRecord) {
	if !s.primary() {
		return
	}
	go func() {
		if err := s.meili.IndexList(l); err != nil {
			log.Printf("search: index list %s: %v", l.ID, err)
		}
	}()
}

// IndexItem indexes an item (fire-and-forget).
func (s *Service) IndexItem(i ItemRecord) {
	if !s.primary() {
		return
	}
	go func() {
		if err := s.meili.IndexItem(i); err != nil {
			log.Printf("search: index item %s: %v", i.ID, err)
		}
	}()
}

// DeleteList removes a list and the given items from the index (fire-and-forget).
func (s *Service) DeleteList(id string, itemIDs []string) {
	if !s.primary() {
		return
	}
	go func() {
		if err := s.meili.DeleteList(id); err != nil {
			log.Printf("search: delete list %s: %v", id, err)
		}
		if err := s.meili.DeleteItems(itemIDs); err != nil {
			log.Printf("search: delete items of list %s: %v", id, err)
		}
	}()
}

// DeleteItems removes items from the index (fire-and-forget).
func (s *Service) DeleteItems(ids []string) {
	if !s.primary() || len(ids) == 0 {
		return
	}
	go func() {
		if err := s.meili.DeleteItems(ids); err != nil {
			log.Printf("search: delete items %v: %v", ids, err)
		}
	}()
}

// ReindexAllFromPG pushes every list and item from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context, source *PgFTS) {
	if !s.primary() || source == nil {
		return
	}
	lists, items, err := source.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexLists(lists); err != nil {
		log.Printf("search: reindex lists: %v", err)
	}
	if err := s.meili.IndexItems(items); err != nil {
		log.Printf("search: reindex items: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
