package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Config holds configuration for the SQLite-backed store.
type Config struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path string

	// Collection is the name of the in-process similarity index.
	Collection string

	// VectorSize is the expected embedding dimension. Must match the
	// embedding provider's output dimension.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "recall_items"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: database path required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	title          TEXT NOT NULL,
	content        TEXT NOT NULL,
	url            TEXT NOT NULL DEFAULT '',
	date           TEXT NOT NULL DEFAULT '',
	embedding      BLOB NOT NULL,
	extracted_info TEXT NOT NULL DEFAULT ''
);`

// SQLiteStore implements Store with a SQLite catalog and an in-process
// chromem-go similarity index.
//
// SQLite is the single durable source of truth. The chromem index holds only
// (id, embedding) pairs and is rebuilt from the catalog at open, so the two
// can never drift across restarts. Metadata updates touch the catalog only;
// the index never sees extracted info.
type SQLiteStore struct {
	db         *sql.DB
	collection *chromem.Collection
	config     Config
	logger     *zap.Logger
}

// NewSQLiteStore opens (or creates) the catalog at cfg.Path and rebuilds the
// similarity index from it.
func NewSQLiteStore(cfg Config, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// The index is queried by embedding only; the embedding function must
	// never be reached.
	index := chromem.NewDB()
	collection, err := index.GetOrCreateCollection(cfg.Collection, nil, rejectEmbeddingFunc)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collection %s: %w", cfg.Collection, err)
	}

	s := &SQLiteStore{
		db:         db,
		collection: collection,
		config:     cfg,
		logger:     logger,
	}

	n, err := s.rebuildIndex(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("rebuilding index: %w", err)
	}

	logger.Info("vector store opened",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
		zap.Int("vector_size", cfg.VectorSize),
		zap.Int("items", n),
	)

	return s, nil
}

// rejectEmbeddingFunc guards against accidental text-based index access.
func rejectEmbeddingFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("store is queried by embedding only")
}

// rebuildIndex loads every catalog row into the similarity index.
func (s *SQLiteStore) rebuildIndex(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, embedding FROM items`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var id, content string
		var blob []byte
		if err := rows.Scan(&id, &content, &blob); err != nil {
			return n, err
		}
		embedding := decodeVector(blob)
		if len(embedding) != s.config.VectorSize {
			return n, fmt.Errorf("%w: item %s has dimension %d, store expects %d",
				ErrDimensionMismatch, id, len(embedding), s.config.VectorSize)
		}
		if err := s.indexDocument(ctx, id, content, embedding); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

func (s *SQLiteStore) indexDocument(ctx context.Context, id, content string, embedding []float32) error {
	return s.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: embedding,
	})
}

// Insert assigns a fresh id and persists the item in catalog and index.
func (s *SQLiteStore) Insert(ctx context.Context, meta Metadata, embedding []float32) (string, error) {
	if len(embedding) != s.config.VectorSize {
		return "", fmt.Errorf("%w: got %d, store expects %d",
			ErrDimensionMismatch, len(embedding), s.config.VectorSize)
	}

	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, type, title, content, url, date, embedding, extracted_info)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(meta.Type), meta.Title, meta.Content, meta.URL, meta.Date,
		encodeVector(embedding), meta.ExtractedInfo,
	)
	if err != nil {
		return "", fmt.Errorf("inserting item: %w", err)
	}

	if err := s.indexDocument(ctx, id, meta.Content, embedding); err != nil {
		// Keep catalog and index consistent.
		if _, delErr := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); delErr != nil {
			s.logger.Error("failed to roll back catalog row after index error",
				zap.String("id", id), zap.Error(delErr))
		}
		return "", fmt.Errorf("indexing item: %w", err)
	}

	s.logger.Debug("item inserted",
		zap.String("id", id),
		zap.String("type", string(meta.Type)),
		zap.String("title", meta.Title),
	)

	return id, nil
}

// Query returns up to k nearest neighbors by cosine distance, ascending.
func (s *SQLiteStore) Query(ctx context.Context, embedding []float32, k int) ([]Neighbor, error) {
	if len(embedding) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: got %d, store expects %d",
			ErrDimensionMismatch, len(embedding), s.config.VectorSize)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// chromem requires nResults <= document count.
	count := s.collection.Count()
	if count == 0 {
		return []Neighbor{}, nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(results))
	for _, r := range results {
		item, err := s.getItem(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("loading item %s: %w", r.ID, err)
		}
		neighbors = append(neighbors, Neighbor{
			Distance: 1 - r.Similarity,
			Item:     item,
		})
	}
	return neighbors, nil
}

// Update replaces stored metadata for an existing id.
func (s *SQLiteStore) Update(ctx context.Context, id string, meta Metadata) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET type = ?, title = ?, content = ?, url = ?, date = ?, extracted_info = ?
		 WHERE id = ?`,
		string(meta.Type), meta.Title, meta.Content, meta.URL, meta.Date, meta.ExtractedInfo, id,
	)
	if err != nil {
		return fmt.Errorf("updating item %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating item %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.logger.Debug("item updated", zap.String("id", id))
	return nil
}

// GetAll returns every item in the catalog.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, title, content, url, date, extracted_info FROM items ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("scanning items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		var typ string
		if err := rows.Scan(&it.ID, &typ, &it.Title, &it.Content, &it.URL, &it.Date, &it.ExtractedInfo); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		it.Type = ItemType(typ)
		items = append(items, it)
	}
	return items, rows.Err()
}

// getItem loads a single item's metadata from the catalog.
func (s *SQLiteStore) getItem(ctx context.Context, id string) (Item, error) {
	var it Item
	var typ string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, title, content, url, date, extracted_info FROM items WHERE id = ?`, id).
		Scan(&it.ID, &typ, &it.Title, &it.Content, &it.URL, &it.Date, &it.ExtractedInfo)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Item{}, err
	}
	it.Type = ItemType(typ)
	return it, nil
}

// Close closes the catalog. The index is in-memory and needs no teardown.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodeVector packs a float32 vector into a little-endian byte blob.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian byte blob into a float32 vector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// Ensure interface is implemented.
var _ Store = (*SQLiteStore)(nil)
