package etl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/cache"
	"github.com/Jyllands-Posten/solrprocessors/internal/document"
	"github.com/Jyllands-Posten/solrprocessors/internal/pipeline"
	"github.com/Jyllands-Posten/solrprocessors/internal/store"
)

// Processor runs one document through the processor chain
type Processor interface {
	Name() string
	Fingerprint() string
	Process(ctx context.Context, doc document.Document) (*pipeline.Result, error)
}

// DocumentStore persists processed documents
type DocumentStore interface {
	BatchInsert(ctx context.Context, records []*store.ProcessedDocument) (*store.BatchInsertResult, error)
}

// ResultCache warms the result cache with processed documents
type ResultCache interface {
	StoreBatch(ctx context.Context, entries []cache.Entry) error
}

// Pipeline processes document files in batches on a worker pool
type Pipeline struct {
	processor Processor
	store     DocumentStore
	cache     ResultCache
	pool      *ants.Pool
	config    *Config
	logger    *zap.Logger
	stats     *ProcessingStats
	mu        sync.RWMutex
}

// NewPipeline creates a new ETL pipeline. docStore and resultCache may be nil.
func NewPipeline(
	processor Processor,
	docStore DocumentStore,
	resultCache ResultCache,
	config *Config,
	logger *zap.Logger,
) (*Pipeline, error) {
	workers := config.WorkerCount
	if workers < 1 {
		workers = 1
	}
	if config.BatchSize < 1 {
		return nil, fmt.Errorf("invalid batch size: %d", config.BatchSize)
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Pipeline{
		processor: processor,
		store:     docStore,
		cache:     resultCache,
		pool:      pool,
		config:    config,
		logger:    logger,
		stats: &ProcessingStats{
			StartTime: time.Now(),
		},
	}, nil
}

// Release releases the worker pool. The pipeline must not be used afterwards.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// ProcessFile processes a dataset file (CSV, Parquet, or JSON lines) and
// writes the processed documents to outputPath when it is not empty.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	format := DetectFileFormat(inputPath)

	p.logger.Info("Starting ETL pipeline",
		zap.String("input", inputPath),
		zap.String("format", string(format)),
		zap.String("output", outputPath),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.pool.Cap()),
		zap.Bool("dry_run", p.config.DryRun))

	start := time.Now()
	result := &ProcessingResult{}
	p.resetStats()

	src, err := openSource(inputPath, format, p.config.IDField)
	if err != nil {
		return result, err
	}
	defer src.Close()

	var out sink
	if outputPath != "" && !p.config.DryRun {
		out, err = createSink(outputPath, DetectFileFormat(outputPath), p.config.IDField)
		if err != nil {
			return result, err
		}
	}

	err = p.processBatches(ctx, src, out, result)
	if out != nil {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output: %w", cerr)
		}
	}
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	p.logger.Info("ETL pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("modified", result.Modified),
		zap.Int64("duplicates", result.Duplicates),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("processing_time", result.ProcessingTime),
		zap.Duration("database_time", result.DatabaseTime))

	return result, nil
}

// processBatches reads and processes batches until the source is drained
func (p *Pipeline) processBatches(ctx context.Context, src source, out sink, result *ProcessingResult) error {
	var lastReport int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := src.Next(p.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to read batch: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		p.mu.Lock()
		p.stats.RecordsRead += int64(len(batch))
		p.stats.CurrentBatch++
		p.mu.Unlock()

		if err := p.processBatch(ctx, batch, out, result); err != nil {
			return err
		}

		if p.config.ProgressReport > 0 && result.TotalRecords-lastReport >= int64(p.config.ProgressReport) {
			lastReport = result.TotalRecords
			p.reportProgress(result)
		}
	}
}

type outcome struct {
	result *pipeline.Result
	err    error
}

// processBatch runs every document of batch on the worker pool, then writes,
// stores and caches the successful ones in input order.
func (p *Pipeline) processBatch(ctx context.Context, batch []document.Document, out sink, result *ProcessingResult) error {
	processStart := time.Now()
	outcomes := make([]outcome, len(batch))

	var wg sync.WaitGroup
	for i, doc := range batch {
		i, doc := i, doc
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			res, err := p.processor.Process(ctx, doc)
			outcomes[i] = outcome{result: res, err: err}
		})
		if err != nil {
			wg.Done()
			outcomes[i] = outcome{err: fmt.Errorf("failed to schedule document: %w", err)}
		}
	}
	wg.Wait()
	result.ProcessingTime += time.Since(processStart)

	processed := make([]document.Document, 0, len(batch))
	var records []*store.ProcessedDocument
	var entries []cache.Entry

	for i, o := range outcomes {
		result.TotalRecords++
		docID := p.docID(batch[i])
		if o.err != nil {
			result.ProcessedFailed++
			result.addError(fmt.Sprintf("document %q: %v", docID, o.err))
			p.logger.Warn("Document processing failed", zap.String("doc_id", docID), zap.Error(o.err))
			continue
		}

		result.ProcessedOK++
		if len(o.result.Modified) > 0 {
			result.Modified++
		}
		processed = append(processed, o.result.Document)

		if p.config.DryRun {
			continue
		}
		if p.store != nil && !p.config.SkipStore {
			rec, err := store.NewRecord(docID, p.processor.Name(), p.processor.Fingerprint(), o.result.Document, o.result.Modified)
			if err != nil {
				result.addError(fmt.Sprintf("document %q: %v", docID, err))
			} else {
				records = append(records, rec)
			}
		}
		if p.cache != nil && !p.config.SkipCache {
			entries = append(entries, cache.Entry{
				Input: batch[i],
				Result: &cache.CachedResult{
					Fingerprint: p.processor.Fingerprint(),
					Document:    o.result.Document,
					Modified:    o.result.Modified,
				},
			})
		}
	}

	if out != nil {
		if err := out.Write(processed); err != nil {
			return err
		}
		p.mu.Lock()
		p.stats.RecordsWritten += int64(len(processed))
		p.mu.Unlock()
	}

	if len(records) > 0 {
		dbStart := time.Now()
		inserted, err := p.store.BatchInsert(ctx, records)
		result.DatabaseTime += time.Since(dbStart)
		if err != nil {
			p.logger.Error("Database batch insert failed", zap.Error(err))
			result.addError(fmt.Sprintf("database batch insert failed: %v", err))
		}
		if inserted != nil {
			result.Duplicates += inserted.Duplicates
			p.mu.Lock()
			p.stats.DatabaseWrites += inserted.Inserted
			p.mu.Unlock()
		}
	}

	if len(entries) > 0 {
		cacheStart := time.Now()
		if err := p.cache.StoreBatch(ctx, entries); err != nil {
			p.logger.Warn("Failed to update cache", zap.Error(err))
		} else {
			p.mu.Lock()
			p.stats.CacheWrites += int64(len(entries))
			p.mu.Unlock()
		}
		result.CacheTime += time.Since(cacheStart)
	}

	p.logger.Debug("Batch processed",
		zap.Int("batch_size", len(batch)),
		zap.Int("processed", len(processed)),
		zap.Int("stored", len(records)),
		zap.Int("cached", len(entries)))

	return nil
}

func (p *Pipeline) docID(doc document.Document) string {
	if id, ok := doc[p.config.IDField]; ok {
		return fmt.Sprint(id)
	}
	return ""
}

// reportProgress reports current processing progress
func (p *Pipeline) reportProgress(result *ProcessingResult) {
	stats := p.GetStats()

	p.logger.Info("Processing progress",
		zap.Int64("records_processed", result.TotalRecords),
		zap.Int64("records_ok", result.ProcessedOK),
		zap.Int64("records_failed", result.ProcessedFailed),
		zap.Float64("rate_per_sec", stats.ProcessingRate),
		zap.Duration("elapsed", time.Since(stats.StartTime)))
}

// resetStats resets processing statistics
func (p *Pipeline) resetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats = &ProcessingStats{
		StartTime: time.Now(),
	}
}

// GetStats returns current processing statistics
func (p *Pipeline) GetStats() *ProcessingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := *p.stats
	if elapsed := time.Since(stats.StartTime).Seconds(); elapsed > 0 {
		stats.ProcessingRate = float64(stats.RecordsRead) / elapsed
	}
	return &stats
}
