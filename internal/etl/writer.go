package etl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/segmentio/parquet-go"

	"github.com/Jyllands-Posten/solrprocessors/internal/document"
)

// sink receives processed documents in input order
type sink interface {
	Write(docs []document.Document) error
	Close() error
}

func createSink(path string, format FileFormat, idField string) (sink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	switch format {
	case FormatJSON:
		return newJSONSink(file), nil
	case FormatParquet:
		return newParquetSink(file, idField), nil
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// jsonSink writes one JSON object per line
type jsonSink struct {
	file    *os.File
	buf     *bufio.Writer
	encoder *json.Encoder
}

func newJSONSink(file *os.File) *jsonSink {
	buf := bufio.NewWriter(file)
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)
	return &jsonSink{file: file, buf: buf, encoder: encoder}
}

func (s *jsonSink) Write(docs []document.Document) error {
	for _, doc := range docs {
		if err := s.encoder.Encode(doc); err != nil {
			return fmt.Errorf("failed to write JSON record: %w", err)
		}
	}
	return nil
}

func (s *jsonSink) Close() error {
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// parquetSink writes documents in long format
type parquetSink struct {
	file    *os.File
	writer  *parquet.GenericWriter[FieldRow]
	idField string
}

func newParquetSink(file *os.File, idField string) *parquetSink {
	return &parquetSink{
		file:    file,
		writer:  parquet.NewGenericWriter[FieldRow](file),
		idField: idField,
	}
}

func (s *parquetSink) Write(docs []document.Document) error {
	var rows []FieldRow
	for _, doc := range docs {
		rows = append(rows, toRows(doc, s.idField)...)
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := s.writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write Parquet rows: %w", err)
	}
	return nil
}

func (s *parquetSink) Close() error {
	if err := s.writer.Close(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

// toRows flattens doc into long format rows sorted by field name. The id
// field becomes the row key rather than a row of its own.
func toRows(doc document.Document, idField string) []FieldRow {
	docID := ""
	if id, ok := doc[idField]; ok {
		docID = fmt.Sprint(id)
	}

	fields := make([]string, 0, len(doc))
	for field := range doc {
		if field != idField {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	var rows []FieldRow
	for _, field := range fields {
		switch v := doc[field].(type) {
		case []string:
			for _, item := range v {
				rows = append(rows, FieldRow{DocID: docID, Field: field, Value: item})
			}
		case []any:
			for _, item := range v {
				rows = append(rows, FieldRow{DocID: docID, Field: field, Value: fmt.Sprint(item)})
			}
		default:
			rows = append(rows, FieldRow{DocID: docID, Field: field, Value: fmt.Sprint(v)})
		}
	}
	return rows
}
