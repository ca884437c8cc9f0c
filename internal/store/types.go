package store

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Jyllands-Posten/solrprocessors/internal/document"
)

// Config contains database configuration
type Config struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// ProcessedDocument is a processed document as persisted in processed_documents
type ProcessedDocument struct {
	ID          int64          `db:"id" json:"id"`
	DocID       string         `db:"doc_id" json:"doc_id"`
	Pipeline    string         `db:"pipeline" json:"pipeline"`
	Fingerprint string         `db:"fingerprint" json:"fingerprint"`
	ContentHash string         `db:"content_hash" json:"content_hash"`
	Document    JSONDocument   `db:"document" json:"document"`
	Modified    pq.StringArray `db:"modified_fields" json:"modified_fields"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// JSONDocument stores a document in a JSONB column
type JSONDocument document.Document

// Value implements driver.Valuer
func (d JSONDocument) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(document.Document(d))
}

// Scan implements sql.Scanner
func (d *JSONDocument) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into document", src)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode((*map[string]any)(d))
}

// DocumentStats represents database statistics
type DocumentStats struct {
	TotalDocuments    int64      `json:"total_documents"`
	ModifiedDocuments int64      `json:"modified_documents"`
	Pipelines         int64      `json:"pipelines"`
	LastStoredAt      *time.Time `json:"last_stored_at,omitempty"`
}

// BatchInsertResult represents the result of a batch insert operation
type BatchInsertResult struct {
	Inserted   int64         `json:"inserted"`
	Duplicates int64         `json:"duplicates"`
	Failed     int64         `json:"failed"`
	Duration   time.Duration `json:"duration"`
	Errors     []error       `json:"errors,omitempty"`
}
