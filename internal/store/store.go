package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/document"
)

const schema = `
	CREATE TABLE IF NOT EXISTS processed_documents (
		id              BIGSERIAL PRIMARY KEY,
		doc_id          TEXT NOT NULL,
		pipeline        TEXT NOT NULL,
		fingerprint     TEXT NOT NULL,
		content_hash    TEXT NOT NULL UNIQUE,
		document        JSONB NOT NULL,
		modified_fields TEXT[] NOT NULL DEFAULT '{}',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_processed_documents_doc_id ON processed_documents (doc_id);`

const (
	// columnsPerRow is the number of bound parameters per inserted row
	columnsPerRow = 6
	// maxParameters is the PostgreSQL limit on bound parameters per statement
	maxParameters       = 65535
	maxRowsPerStatement = maxParameters / columnsPerRow
)

// Store persists processed documents in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore creates a new document store instance
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Document store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// initialize checks the connection and creates the schema
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Info("Database schema ready")
	return nil
}

// NewRecord builds a record for doc with its content hash filled in
func NewRecord(docID, pipeline, fingerprint string, doc document.Document, modified []string) (*ProcessedDocument, error) {
	hash, err := ContentHash(fingerprint, doc)
	if err != nil {
		return nil, err
	}
	if modified == nil {
		modified = []string{}
	}
	return &ProcessedDocument{
		DocID:       docID,
		Pipeline:    pipeline,
		Fingerprint: fingerprint,
		ContentHash: hash,
		Document:    JSONDocument(doc),
		Modified:    modified,
	}, nil
}

// ContentHash identifies a processed document by the chain that produced it
// and its content.
func ContentHash(fingerprint string, doc document.Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	hasher := sha256.New()
	hasher.Write([]byte(fingerprint))
	hasher.Write([]byte{0})
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Insert adds a processed document; an already stored content hash is ignored
func (s *Store) Insert(ctx context.Context, rec *ProcessedDocument) error {
	query := `
		INSERT INTO processed_documents (doc_id, pipeline, fingerprint, content_hash, document, modified_fields)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		rec.DocID,
		rec.Pipeline,
		rec.Fingerprint,
		rec.ContentHash,
		rec.Document,
		rec.Modified,
	).Scan(&rec.ID, &rec.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("Document already stored", zap.String("doc_id", rec.DocID))
		return nil
	}
	if err != nil {
		s.logger.Error("Failed to insert document",
			zap.Error(err),
			zap.String("doc_id", rec.DocID))
		return fmt.Errorf("failed to insert document: %w", err)
	}

	s.logger.Debug("Document inserted successfully",
		zap.Int64("id", rec.ID),
		zap.String("doc_id", rec.DocID))

	return nil
}

// BatchInsert adds multiple processed documents, one statement per chunk
// of maxRowsPerStatement records. A failed chunk does not stop the rest;
// the returned error joins every chunk failure.
func (s *Store) BatchInsert(ctx context.Context, records []*ProcessedDocument) (*BatchInsertResult, error) {
	start := time.Now()
	result := &BatchInsertResult{}

	for _, chunk := range chunkRecords(records, maxRowsPerStatement) {
		query, args := buildBatchInsert(chunk)

		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			result.Failed += int64(len(chunk))
			result.Errors = append(result.Errors, err)
			s.logger.Error("Batch insert failed", zap.Int("records", len(chunk)), zap.Error(err))
			continue
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			s.logger.Warn("Could not get rows affected", zap.Error(err))
			inserted = int64(len(chunk))
		}
		result.Inserted += inserted
		result.Duplicates += int64(len(chunk)) - inserted
	}
	result.Duration = time.Since(start)

	if len(result.Errors) > 0 {
		return result, fmt.Errorf("batch insert failed for %d of %d records: %w",
			result.Failed, len(records), errors.Join(result.Errors...))
	}

	if len(records) > 0 {
		s.logger.Info("Batch insert completed",
			zap.Int64("inserted", result.Inserted),
			zap.Int64("duplicates_skipped", result.Duplicates),
			zap.Duration("duration", result.Duration))
	}

	return result, nil
}

// chunkRecords splits records into slices of at most size elements
func chunkRecords(records []*ProcessedDocument, size int) [][]*ProcessedDocument {
	var chunks [][]*ProcessedDocument
	for len(records) > size {
		chunks = append(chunks, records[:size:size])
		records = records[size:]
	}
	if len(records) > 0 {
		chunks = append(chunks, records)
	}
	return chunks
}

// buildBatchInsert renders the multi-row insert statement for records
func buildBatchInsert(records []*ProcessedDocument) (string, []any) {
	valueStrings := make([]string, 0, len(records))
	valueArgs := make([]any, 0, len(records)*columnsPerRow)

	for i, rec := range records {
		n := i * columnsPerRow
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6))
		valueArgs = append(valueArgs,
			rec.DocID,
			rec.Pipeline,
			rec.Fingerprint,
			rec.ContentHash,
			rec.Document,
			rec.Modified,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO processed_documents (doc_id, pipeline, fingerprint, content_hash, document, modified_fields)
		VALUES %s
		ON CONFLICT (content_hash) DO NOTHING`,
		strings.Join(valueStrings, ","))

	return query, valueArgs
}

// GetLatest returns the most recently stored version of a document
func (s *Store) GetLatest(ctx context.Context, docID string) (*ProcessedDocument, error) {
	var rec ProcessedDocument
	query := `
		SELECT id, doc_id, pipeline, fingerprint, content_hash, document, modified_fields, created_at
		FROM processed_documents
		WHERE doc_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	if err := s.db.GetContext(ctx, &rec, query, docID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load document %q: %w", docID, err)
	}
	return &rec, nil
}

// GetStats returns database statistics
func (s *Store) GetStats(ctx context.Context) (*DocumentStats, error) {
	stats := &DocumentStats{}

	query := `
		SELECT
			COUNT(*) as total,
			COUNT(CASE WHEN cardinality(modified_fields) > 0 THEN 1 END) as modified,
			COUNT(DISTINCT pipeline) as pipelines,
			MAX(created_at) as last_stored
		FROM processed_documents`

	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalDocuments,
		&stats.ModifiedDocuments,
		&stats.Pipelines,
		&last,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get document stats: %w", err)
	}
	if last.Valid {
		stats.LastStoredAt = &last.Time
	}

	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	if colon < 0 || colon <= strings.Index(userPart, "://")+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
