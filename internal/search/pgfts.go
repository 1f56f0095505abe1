package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL over lists and items restricted to q.SpaceIDs.
// Items match on their generated search vector, lists on their name.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || len(q.SpaceIDs) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('simple', $1)"
	args := []any{q.Text, q.SpaceIDs}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultList {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'list'::text AS type, l.id, l.name AS title,
				ts_headline('simple', l.name, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				l.id AS list_id, l.space_id, FALSE AS completed,
				ts_rank(to_tsvector('simple', l.name), %[1]s) AS rank
			FROM lists l
			WHERE l.space_id = ANY($2) AND to_tsvector('simple', l.name) @@ %[1]s`, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultItem {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'item'::text AS type, i.id, i.text AS title,
				ts_headline('simple', i.text, %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				i.list_id, l.space_id, i.completed,
				ts_rank(i.search_vector, %[1]s) AS rank
			FROM list_items i
			JOIN lists l ON l.id = i.list_id
			WHERE l.space_id = ANY($2) AND i.search_vector @@ %[1]s`, tsQuery))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, list_id, space_id, completed
		FROM (%s) sub
		ORDER BY rank DESC, id ASC
		LIMIT %d OFFSET %d`, union, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ListID, &r.SpaceID, &r.Completed); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ListRecord, []ItemRecord, error) {
	listRows, err := p.db.QueryContext(ctx, `SELECT id, name, space_id FROM lists`)
	if err != nil {
		return nil, nil, fmt.Errorf("load lists: %w", err)
	}
	defer listRows.Close()

	lists := make([]ListRecord, 0)
	for listRows.Next() {
		var l ListRecord
		if err := listRows.Scan(&l.ID, &l.Name, &l.SpaceID); err != nil {
			return nil, nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, l)
	}
	if err := listRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate lists: %w", err)
	}

	itemRows, err := p.db.QueryContext(ctx, `
		SELECT i.id, i.text, i.list_id, l.space_id, i.completed
		FROM list_items i
		JOIN lists l ON l.id = i.list_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load items: %w", err)
	}
	defer itemRows.Close()

	items := make([]ItemRecord, 0)
	for itemRows.Next() {
		var i ItemRecord
		if err := itemRows.Scan(&i.ID, &i.Text, &i.ListID, &i.SpaceID, &i.Completed); err != nil {
			return nil, nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, i)
	}
	if err := itemRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate items: %w", err)
	}
	return lists, items, nil
}
