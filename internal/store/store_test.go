package store

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jyllands-Posten/solrprocessors/internal/document"
)

func TestContentHash(t *testing.T) {
	a, err := ContentHash("fp", document.Document{"a": "1", "b": "2"})
	require.NoError(t, err)
	b, err := ContentHash("fp", document.Document{"b": "2", "a": "1"})
	require.NoError(t, err)
	c, err := ContentHash("other", document.Document{"a": "1", "b": "2"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestNewRecord(t *testing.T) {
	rec, err := NewRecord("42", "default", "fp", document.Document{"title": "x"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "42", rec.DocID)
	assert.Equal(t, "default", rec.Pipeline)
	assert.NotEmpty(t, rec.ContentHash)
	assert.NotNil(t, rec.Modified)
	assert.Empty(t, rec.Modified)
}

func TestBuildBatchInsert(t *testing.T) {
	r1, err := NewRecord("1", "p", "fp", document.Document{"f": "a"}, []string{"f"})
	require.NoError(t, err)
	r2, err := NewRecord("2", "p", "fp", document.Document{"f": "b"}, nil)
	require.NoError(t, err)

	query, args := buildBatchInsert([]*ProcessedDocument{r1, r2})

	assert.Contains(t, query, "($1, $2, $3, $4, $5, $6),($7, $8, $9, $10, $11, $12)")
	assert.Contains(t, query, "ON CONFLICT (content_hash) DO NOTHING")
	assert.Len(t, args, 12)
	assert.Equal(t, "2", args[6])
	assert.Equal(t, 1, strings.Count(query, "INSERT INTO"))
}

func TestJSONDocument(t *testing.T) {
	doc := JSONDocument{"title": "x", "tags": []any{"a", "b"}}

	v, err := doc.Value()
	require.NoError(t, err)

	var back JSONDocument
	require.NoError(t, back.Scan(v))
	assert.Equal(t, doc, back)

	require.NoError(t, back.Scan(`{"n":1}`))
	assert.Equal(t, JSONDocument{"n": json.Number("1")}, back)

	require.NoError(t, back.Scan([]byte(`{"id":12345678901234567890}`)))
	v, err = back.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":12345678901234567890}`, string(v.([]byte)))
	assert.Equal(t, json.Number("12345678901234567890"), back["id"])

	require.NoError(t, back.Scan(nil))
	assert.Nil(t, back)

	assert.Error(t, back.Scan(42))
}

func TestChunkRecords(t *testing.T) {
	records := make([]*ProcessedDocument, 11000)
	for i := range records {
		records[i] = &ProcessedDocument{DocID: strconv.Itoa(i)}
	}

	chunks := chunkRecords(records, maxRowsPerStatement)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], maxRowsPerStatement)
	assert.Len(t, chunks[1], 11000-maxRowsPerStatement)
	assert.Equal(t, "0", chunks[0][0].DocID)
	assert.Equal(t, strconv.Itoa(maxRowsPerStatement), chunks[1][0].DocID)

	for _, chunk := range chunks {
		_, args := buildBatchInsert(chunk)
		assert.LessOrEqual(t, len(args), maxParameters)
	}

	assert.Empty(t, chunkRecords(nil, maxRowsPerStatement))
	assert.Len(t, chunkRecords(records[:3], 3), 1)
}

func TestMaskDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://app:***@db:5432/x", maskDatabaseURL("postgres://app:secret@db:5432/x"))
	assert.Equal(t, "postgres://localhost:5432/x", maskDatabaseURL("postgres://localhost:5432/x"))
}
