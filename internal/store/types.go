// Package store holds the search index that captured changes are applied to.
//
// Every mutation goes through an IndexTx: the updater stages all changes of
// one batch and commits them together, or rolls them all back.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrClosed is returned by operations on a closed backend or finished transaction.
var ErrClosed = errors.New("index is closed")

// Document is one entity as stored in the index. A document is identified by
// its indexed type, id field and id, so entities sharing an indexed type
// under different id fields never replace each other.
type Document struct {
	IndexedType string
	// ID is the encoded entity id; it is also the value of IDField.
	ID string
	// IDField names the keyword field holding ID, used by DeleteByField.
	IDField string
	Fields  map[string]any
}

// Hit is one search result.
type Hit struct {
	IndexedType string  `json:"indexed_type"`
	IDField     string  `json:"id_field"`
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
}

// IndexBackend is a search index with transactional writes.
type IndexBackend interface {
	// Begin starts a transaction. Nothing staged in it is visible until Commit.
	Begin(ctx context.Context) (IndexTx, error)
	// Search returns the best matches of query among documents of
	// indexedType. An empty query matches every document of the type.
	Search(ctx context.Context, indexedType, query string, limit int) ([]Hit, error)
	// Count returns the number of documents of indexedType.
	Count(ctx context.Context, indexedType string) (uint64, error)
	Close() error
}

// IndexTx stages index mutations.
type IndexTx interface {
	// Index writes doc, replacing any document with the same type, id field
	// and id.
	Index(doc Document) error
	// Update replaces doc. It behaves like Index.
	Update(doc Document) error
	// DeleteByField removes documents of indexedType whose id field named
	// field holds value. Deleting a missing document is not an error.
	DeleteByField(indexedType, field, value string) error
	// PurgeAll removes every document of indexedType written under idField.
	// An empty idField removes every document of the type.
	PurgeAll(indexedType, idField string) error
	Commit() error
	// Rollback discards staged mutations. It is a no-op after Commit.
	Rollback() error
}

// docKey is the unique key of a document. Parts are escaped so that a "/"
// inside one of them cannot make two documents collide.
func docKey(indexedType, idField, id string) string {
	return url.PathEscape(indexedType) + "/" + url.PathEscape(idField) + "/" + url.PathEscape(id)
}

func validateDoc(doc Document) error {
	if doc.IndexedType == "" || doc.ID == "" || doc.IDField == "" {
		return fmt.Errorf("document needs indexed type, id and id field (got %q/%q/%q)", doc.IndexedType, doc.ID, doc.IDField)
	}
	return nil
}

// contentOf joins the text of every field in key order, for backends that
// index a single text column.
func contentOf(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case nil:
		case string:
			parts = append(parts, v)
		case []byte:
			parts = append(parts, string(v))
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, " ")
}
