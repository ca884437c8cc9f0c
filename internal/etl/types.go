package etl

import (
	"strings"
	"time"
)

// FieldRow is one field value of one document in long format. Multi-valued
// fields repeat the field name; rows of a document must be contiguous.
type FieldRow struct {
	DocID string `parquet:"doc_id" json:"doc_id"`
	Field string `parquet:"field" json:"field"`
	Value string `parquet:"value" json:"value"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	Modified        int64         `json:"modified"`
	Duplicates      int64         `json:"duplicates"`
	Duration        time.Duration `json:"duration"`
	ProcessingTime  time.Duration `json:"processing_time"`
	DatabaseTime    time.Duration `json:"database_time"`
	CacheTime       time.Duration `json:"cache_time"`
	Errors          []string      `json:"errors,omitempty"`
}

// maxReportedErrors caps ProcessingResult.Errors
const maxReportedErrors = 100

func (r *ProcessingResult) addError(msg string) {
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, msg)
	}
}

// Config contains ETL pipeline configuration
type Config struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`           // 1000
	WorkerCount    int    `yaml:"worker_count" mapstructure:"worker_count"`       // 4
	ProgressReport int    `yaml:"progress_report" mapstructure:"progress_report"` // 10000
	IDField        string `yaml:"id_field" mapstructure:"id_field"`               // id
	SkipCache      bool   `yaml:"skip_cache" mapstructure:"skip_cache"`
	SkipStore      bool   `yaml:"skip_store" mapstructure:"skip_store"`
	DryRun         bool   `yaml:"dry_run" mapstructure:"dry_run"`
}

// ProcessingStats tracks real-time processing statistics
type ProcessingStats struct {
	StartTime      time.Time `json:"start_time"`
	RecordsRead    int64     `json:"records_read"`
	RecordsWritten int64     `json:"records_written"`
	DatabaseWrites int64     `json:"database_writes"`
	CacheWrites    int64     `json:"cache_writes"`
	CurrentBatch   int64     `json:"current_batch"`
	ProcessingRate float64   `json:"processing_rate"` // records per second
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "jsonl"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".csv"):
		return FormatCSV
	case strings.HasSuffix(name, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(name, ".jsonl"), strings.HasSuffix(name, ".ndjson"), strings.HasSuffix(name, ".json"):
		return FormatJSON
	default:
		return FormatCSV // Default to CSV
	}
}
