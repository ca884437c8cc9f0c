package etl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/cache"
	"github.com/Jyllands-Posten/solrprocessors/internal/config"
	"github.com/Jyllands-Posten/solrprocessors/internal/document"
	"github.com/Jyllands-Posten/solrprocessors/internal/htmlstrip"
	"github.com/Jyllands-Posten/solrprocessors/internal/pipeline"
	"github.com/Jyllands-Posten/solrprocessors/internal/replace"
	"github.com/Jyllands-Posten/solrprocessors/internal/store"
)

func strPtr(s string) *string { return &s }

func testProcessor(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Build([]config.ProcessorConfig{
		{
			Name:      "strip-markup",
			Type:      config.ProcessorHTMLStrip,
			HTMLStrip: &htmlstrip.Config{Fields: []string{"content"}},
		},
		{
			Name: "scrub",
			Type: config.ProcessorPatternReplace,
			PatternReplace: &replace.Config{
				Rules: []replace.RuleConfig{
					{ID: "punctuation", Pattern: strPtr(`\p{P}`), Replace: strPtr("")},
					{ID: "prefix", Pattern: strPtr(`^\d{4}`), Replace: strPtr("****")},
				},
				Fields: []replace.FieldConfig{
					{Name: "card", Rule: "prefix"},
					{Name: "comment", Rule: "punctuation"},
				},
			},
		},
	}, nil)
	require.NoError(t, err)
	return p
}

func testConfig() *Config {
	return &Config{BatchSize: 2, WorkerCount: 3, ProgressReport: 1, IDField: "id"}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readJSONL(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var docs []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var doc map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &doc))
		docs = append(docs, doc)
	}
	require.NoError(t, scanner.Err())
	return docs
}

type fakeStore struct {
	mu      sync.Mutex
	records []*store.ProcessedDocument
}

func (s *fakeStore) BatchInsert(_ context.Context, records []*store.ProcessedDocument) (*store.BatchInsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return &store.BatchInsertResult{Inserted: int64(len(records))}, nil
}

type fakeCache struct {
	entries []cache.Entry
}

func (c *fakeCache) StoreBatch(_ context.Context, entries []cache.Entry) error {
	c.entries = append(c.entries, entries...)
	return nil
}

type flakyProcessor struct {
	*pipeline.Pipeline
	failID string
}

func (f flakyProcessor) Process(ctx context.Context, doc document.Document) (*pipeline.Result, error) {
	if doc["id"] == f.failID {
		return nil, errors.New("boom")
	}
	return f.Pipeline.Process(ctx, doc)
}

func TestProcessFile_JSONL(t *testing.T) {
	input := writeFile(t, "in.jsonl", `{"id":"1","card":"3333-1111","count":3}
{"id":"2","comment":"There, is. punctuation!!"}
{"id":"3","content":"<p>Content <b>with</b> markup</p>"}
`)
	output := filepath.Join(t.TempDir(), "out.jsonl")

	fs := &fakeStore{}
	fc := &fakeCache{}
	p, err := NewPipeline(testProcessor(t), fs, fc, testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer p.Release()

	result, err := p.ProcessFile(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, int64(3), result.ProcessedOK)
	assert.Equal(t, int64(0), result.ProcessedFailed)
	assert.Equal(t, int64(3), result.Modified)

	docs := readJSONL(t, output)
	require.Len(t, docs, 3)
	assert.Equal(t, "****-1111", docs[0]["card"])
	assert.Equal(t, float64(3), docs[0]["count"])
	assert.Equal(t, "There is punctuation", docs[1]["comment"])
	assert.Equal(t, "Content with markup", docs[2]["content"])

	assert.Len(t, fs.records, 3)
	assert.Equal(t, "1", fs.records[0].DocID)
	assert.Len(t, fc.entries, 3)
	assert.Equal(t, "3333-1111", fc.entries[0].Input["card"])

	stats := p.GetStats()
	assert.Equal(t, int64(3), stats.RecordsRead)
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.CurrentBatch)
}

func TestProcessFile_CSVToParquet(t *testing.T) {
	input := writeFile(t, "in.csv", "id,card,comment\n1,1234-5678,a.b\n2,,c!d\n")
	output := filepath.Join(t.TempDir(), "out.parquet")

	p, err := NewPipeline(testProcessor(t), nil, nil, testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer p.Release()

	result, err := p.ProcessFile(context.Background(), input, output)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.ProcessedOK)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()

	src := newParquetSource(f, "id")
	docs, err := src.Next(10)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, document.Document{"id": "1", "card": "****-5678", "comment": "ab"}, docs[0])
	assert.Equal(t, document.Document{"id": "2", "comment": "cd"}, docs[1])
}

func TestProcessFile_Failures(t *testing.T) {
	input := writeFile(t, "in.jsonl", `{"id":"1","card":"1234"}
{"id":"2","card":"5678"}
`)
	output := filepath.Join(t.TempDir(), "out.jsonl")

	proc := flakyProcessor{Pipeline: testProcessor(t), failID: "2"}
	p, err := NewPipeline(proc, nil, nil, testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer p.Release()

	result, err := p.ProcessFile(context.Background(), input, output)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.TotalRecords)
	assert.Equal(t, int64(1), result.ProcessedOK)
	assert.Equal(t, int64(1), result.ProcessedFailed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `document "2"`)

	assert.Len(t, readJSONL(t, output), 1)
}

func TestProcessFile_DryRun(t *testing.T) {
	input := writeFile(t, "in.jsonl", `{"id":"1","card":"1234"}`+"\n")
	output := filepath.Join(t.TempDir(), "out.jsonl")

	cfg := testConfig()
	cfg.DryRun = true
	fs := &fakeStore{}
	fc := &fakeCache{}
	p, err := NewPipeline(testProcessor(t), fs, fc, cfg, zap.NewNop())
	require.NoError(t, err)
	defer p.Release()

	result, err := p.ProcessFile(context.Background(), input, output)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.ProcessedOK)

	assert.NoFileExists(t, output)
	assert.Empty(t, fs.records)
	assert.Empty(t, fc.entries)
}

func TestProcessFile_SkipStoreAndCache(t *testing.T) {
	input := writeFile(t, "in.jsonl", `{"id":"1","card":"1234"}`+"\n")

	cfg := testConfig()
	cfg.SkipStore = true
	cfg.SkipCache = true
	fs := &fakeStore{}
	fc := &fakeCache{}
	p, err := NewPipeline(testProcessor(t), fs, fc, cfg, zap.NewNop())
	require.NoError(t, err)
	defer p.Release()

	_, err = p.ProcessFile(context.Background(), input, "")
	require.NoError(t, err)
	assert.Empty(t, fs.records)
	assert.Empty(t, fc.entries)
}

func TestProcessFile_Cancelled(t *testing.T) {
	input := writeFile(t, "in.jsonl", `{"id":"1"}`+"\n")
	p, err := NewPipeline(testProcessor(t), nil, nil, testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.ProcessFile(ctx, input, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessFile_MissingInput(t *testing.T) {
	p, err := NewPipeline(testProcessor(t), nil, nil, testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer p.Release()

	_, err = p.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "none.csv"), "")
	assert.Error(t, err)
}

func TestNewPipeline_InvalidBatchSize(t *testing.T) {
	_, err := NewPipeline(testProcessor(t), nil, nil, &Config{BatchSize: 0}, zap.NewNop())
	assert.Error(t, err)
}

func TestParquetSource_MultiValued(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[FieldRow](f)
	_, err = w.Write([]FieldRow{
		{DocID: "a", Field: "tag", Value: "x"},
		{DocID: "a", Field: "tag", Value: "y"},
		{DocID: "a", Field: "tag", Value: "z"},
		{DocID: "b", Field: "title", Value: "t"},
		{DocID: "c", Field: "title", Value: "u"},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	src := newParquetSource(in, "id")
	defer src.Close()

	first, err := src.Next(2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, document.Document{"id": "a", "tag": []string{"x", "y", "z"}}, first[0])
	assert.Equal(t, document.Document{"id": "b", "title": "t"}, first[1])

	rest, err := src.Next(2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", rest[0]["id"])

	end, err := src.Next(2)
	require.NoError(t, err)
	assert.Empty(t, end)
}

func TestToRows(t *testing.T) {
	rows := toRows(document.Document{
		"id":    7,
		"title": "t",
		"tags":  []string{"a", "b"},
		"mixed": []any{"x", 1},
	}, "id")

	assert.Equal(t, []FieldRow{
		{DocID: "7", Field: "mixed", Value: "x"},
		{DocID: "7", Field: "mixed", Value: "1"},
		{DocID: "7", Field: "tags", Value: "a"},
		{DocID: "7", Field: "tags", Value: "b"},
		{DocID: "7", Field: "title", Value: "t"},
	}, rows)
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"data.csv":     FormatCSV,
		"DATA.CSV":     FormatCSV,
		"data.parquet": FormatParquet,
		"data.jsonl":   FormatJSON,
		"data.ndjson":  FormatJSON,
		"data.json":    FormatJSON,
		"data.unknown": FormatCSV,
	}
	for name, want := range tests {
		assert.Equal(t, want, DetectFileFormat(name), name)
	}
}
