package journal

import (
	"context"
	"fmt"
	"strings"
)

// Entry is one recorded stage notification.
type Entry struct {
	ID      int64  `json:"id"`
	Object  string `json:"object"`
	EventID string `json:"event_id"`
	Seq     int64  `json:"seq"`
	Batch   string `json:"batch,omitempty"`
	Field   string `json:"field"`
	Kind    string `json:"kind"`
	Stage   string `json:"stage"`
	Old     string `json:"old"`
	New     string `json:"new"`
}

// Filter narrows Entries. Zero fields match everything.
type Filter struct {
	Object  string
	Field   string
	EventID string
	Stage   string
}

// Entries returns matching entries in recording order.
//
// Returns an empty slice (not nil) if nothing matches.
func (j *Journal) Entries(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Object != "" {
		where = append(where, "object = ?")
		args = append(args, f.Object)
	}
	if f.Field != "" {
		where = append(where, "field = ?")
		args = append(args, f.Field)
	}
	if f.EventID != "" {
		where = append(where, "event_id = ?")
		args = append(args, f.EventID)
	}
	if f.Stage != "" {
		where = append(where, "stage = ?")
		args = append(args, f.Stage)
	}

	query := `
		SELECT id, object, event_id, seq, batch, field, kind, stage, old_value, new_value
		FROM entries`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY id ASC"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Object, &e.EventID, &e.Seq, &e.Batch, &e.Field, &e.Kind, &e.Stage, &e.Old, &e.New); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Object describes an attached object.
type Object struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Entries int    `json:"entries"`
}

// Objects lists attached objects in id order with their entry counts.
func (j *Journal) Objects(ctx context.Context) ([]Object, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT o.id, o.type, COUNT(e.id)
		FROM objects o
		LEFT JOIN entries e ON e.object = o.id
		GROUP BY o.id, o.type
		ORDER BY o.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	objects := []Object{}
	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.ID, &o.Type, &o.Entries); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return objects, nil
}
