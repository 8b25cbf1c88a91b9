package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/searchsync/internal/logging"
)

// Reserved document fields. Entity fields live under fieldsKey so they can
// never collide with these.
const (
	typeField     = "_type"
	keyField      = "_key"
	keyFieldName  = "_key_field"
	fieldsKey     = "fields"
	searchPageLen = 1000
)

// BleveIndex is an IndexBackend on a single Bleve index. Documents of every
// indexed type share it, keyed by type, id field and id.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
	logger *slog.Logger
}

var _ IndexBackend = (*BleveIndex)(nil)

// validateBleveIntegrity checks an on-disk index before opening it.
// A missing directory is fine; it will be created.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isBleveCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return errors.Is(err, bleve.ErrorIndexMetaCorrupt) ||
		strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// NewBleveIndex opens or creates the index at path. An empty path keeps the
// index in memory. A corrupted on-disk index is removed and recreated empty;
// the index is derived data, and the next reindex fills it again.
func NewBleveIndex(path string, logger *slog.Logger) (*BleveIndex, error) {
	logger = logging.OrDefault(logger)
	im := newIndexMapping()

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		if validErr := validateBleveIntegrity(path); validErr != nil {
			if err := clearCorrupt(logger, path, validErr); err != nil {
				return nil, err
			}
		}

		idx, err = bleve.Open(path)
		switch {
		case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
			idx, err = bleve.New(path, im)
		case isBleveCorruption(err):
			if clearErr := clearCorrupt(logger, path, err); clearErr != nil {
				return nil, clearErr
			}
			idx, err = bleve.New(path, im)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveIndex{index: idx, path: path, logger: logger}, nil
}

func clearCorrupt(logger *slog.Logger, path string, cause error) error {
	logger.Warn("index corrupted, clearing",
		slog.String("path", path),
		slog.String("error", cause.Error()))
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, err, cause)
	}
	return nil
}

// newIndexMapping maps the reserved fields as exact-match keywords kept out
// of the composite _all field; entity fields are mapped dynamically.
func newIndexMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	for _, name := range []string{typeField, keyField, keyFieldName} {
		kw := bleve.NewKeywordFieldMapping()
		kw.IncludeInAll = false
		doc.AddFieldMappingsAt(name, kw)
	}
	im.DefaultMapping = doc
	return im
}

func termQuery(field, value string) query.Query {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

func typeQuery(indexedType string) query.Query {
	return termQuery(typeField, indexedType)
}

func bleveData(doc Document) map[string]any {
	return map[string]any{
		typeField:    doc.IndexedType,
		keyField:     doc.ID,
		keyFieldName: doc.IDField,
		fieldsKey:    doc.Fields,
	}
}

// Begin implements IndexBackend.
func (b *BleveIndex) Begin(ctx context.Context) (IndexTx, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	return &bleveTx{ctx: ctx, b: b, batch: b.index.NewBatch(), staged: make(map[string]Document)}, nil
}

// Search implements IndexBackend.
func (b *BleveIndex) Search(ctx context.Context, indexedType, text string, limit int) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 10
	}

	var q query.Query = typeQuery(indexedType)
	if strings.TrimSpace(text) != "" {
		q = bleve.NewConjunctionQuery(q, bleve.NewMatchQuery(text))
	}
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{keyField, keyFieldName}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, _ := h.Fields[keyField].(string)
		field, _ := h.Fields[keyFieldName].(string)
		hits = append(hits, Hit{IndexedType: indexedType, IDField: field, ID: id, Score: h.Score})
	}
	return hits, nil
}

// Count implements IndexBackend.
func (b *BleveIndex) Count(ctx context.Context, indexedType string) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}
	res, err := b.index.SearchInContext(ctx, bleve.NewSearchRequestOptions(typeQuery(indexedType), 0, 0, false))
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return res.Total, nil
}

// Close implements IndexBackend.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

// matching returns the document keys matched by q in the committed index.
func (b *BleveIndex) matching(ctx context.Context, q query.Query) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	var keys []string
	for from := 0; ; from += searchPageLen {
		res, err := b.index.SearchInContext(ctx, bleve.NewSearchRequestOptions(q, searchPageLen, from, false))
		if err != nil {
			return nil, err
		}
		for _, h := range res.Hits {
			keys = append(keys, h.ID)
		}
		if len(res.Hits) < searchPageLen {
			return keys, nil
		}
	}
}

// bleveTx stages mutations in one bleve.Batch. Index.Batch applies a batch
// atomically, which gives the transaction its all-or-nothing commit.
type bleveTx struct {
	ctx    context.Context
	b      *BleveIndex
	batch  *bleve.Batch
	staged map[string]Document
	done   bool
}

func (t *bleveTx) Index(doc Document) error {
	if t.done {
		return ErrClosed
	}
	if err := validateDoc(doc); err != nil {
		return err
	}
	key := docKey(doc.IndexedType, doc.IDField, doc.ID)
	if err := t.batch.Index(key, bleveData(doc)); err != nil {
		return fmt.Errorf("failed to stage document %s: %w", key, err)
	}
	t.staged[key] = doc
	return nil
}

func (t *bleveTx) Update(doc Document) error {
	return t.Index(doc)
}

func (t *bleveTx) DeleteByField(indexedType, field, value string) error {
	if t.done {
		return ErrClosed
	}
	key := docKey(indexedType, field, value)
	t.batch.Delete(key)
	delete(t.staged, key)
	return nil
}

func (t *bleveTx) PurgeAll(indexedType, idField string) error {
	if t.done {
		return ErrClosed
	}
	var q query.Query = typeQuery(indexedType)
	if idField != "" {
		q = bleve.NewConjunctionQuery(q, termQuery(keyFieldName, idField))
	}
	keys, err := t.b.matching(t.ctx, q)
	if err != nil {
		return fmt.Errorf("failed to find documents to purge: %w", err)
	}
	for _, k := range keys {
		t.batch.Delete(k)
	}
	for k, doc := range t.staged {
		if doc.IndexedType == indexedType && (idField == "" || doc.IDField == idField) {
			t.batch.Delete(k)
			delete(t.staged, k)
		}
	}
	return nil
}

func (t *bleveTx) Commit() error {
	if t.done {
		return ErrClosed
	}
	t.done = true

	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	if t.b.closed {
		return ErrClosed
	}
	if t.batch.Size() == 0 {
		return nil
	}
	if err := t.b.index.Batch(t.batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

func (t *bleveTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.batch.Reset()
	return nil
}
