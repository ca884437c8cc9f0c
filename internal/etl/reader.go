package etl

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/segmentio/parquet-go"

	"github.com/Jyllands-Posten/solrprocessors/internal/document"
)

// source yields documents from an input file
type source interface {
	// Next returns up to n documents; an empty batch means end of input.
	Next(n int) ([]document.Document, error)
	Close() error
}

func openSource(path string, format FileFormat, idField string) (source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file: %w", format, err)
	}

	var src source
	switch format {
	case FormatCSV:
		src, err = newCSVSource(file)
	case FormatJSON:
		src = newJSONSource(file)
	case FormatParquet:
		src = newParquetSource(file, idField)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		file.Close()
		return nil, err
	}
	return src, nil
}

// csvSource reads one document per row, named by the header row. Empty
// cells are left out of the document.
type csvSource struct {
	file   *os.File
	reader *csv.Reader
	header []string
}

func newCSVSource(file *os.File) (*csvSource, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return &csvSource{file: file, reader: reader, header: header}, nil
}

func (s *csvSource) Next(n int) ([]document.Document, error) {
	var batch []document.Document
	for len(batch) < n {
		record, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch, fmt.Errorf("failed to read CSV record: %w", err)
		}

		doc := make(document.Document, len(record))
		for i, value := range record {
			if value != "" {
				doc[s.header[i]] = value
			}
		}
		batch = append(batch, doc)
	}
	return batch, nil
}

func (s *csvSource) Close() error { return s.file.Close() }

// jsonSource reads one JSON object per line
type jsonSource struct {
	file    *os.File
	decoder *json.Decoder
}

func newJSONSource(file *os.File) *jsonSource {
	decoder := json.NewDecoder(file)
	decoder.UseNumber()
	return &jsonSource{file: file, decoder: decoder}
}

func (s *jsonSource) Next(n int) ([]document.Document, error) {
	var batch []document.Document
	for len(batch) < n {
		var doc document.Document
		err := s.decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch, fmt.Errorf("failed to read JSON record: %w", err)
		}
		if doc == nil {
			continue
		}
		batch = append(batch, doc)
	}
	return batch, nil
}

func (s *jsonSource) Close() error { return s.file.Close() }

// parquetSource assembles documents from long format FieldRow rows
type parquetSource struct {
	file    *os.File
	reader  *parquet.Reader
	pending *FieldRow
	idField string
}

func newParquetSource(file *os.File, idField string) *parquetSource {
	return &parquetSource{file: file, reader: parquet.NewReader(file), idField: idField}
}

func (s *parquetSource) Next(n int) ([]document.Document, error) {
	var batch []document.Document
	var current document.Document
	currentID := ""

	for {
		row, err := s.nextRow()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return batch, fmt.Errorf("failed to read Parquet record: %w", err)
		}

		if current != nil && row.DocID != currentID {
			batch = append(batch, current)
			current = nil
			if len(batch) == n {
				s.pending = row
				return batch, nil
			}
		}
		if current == nil {
			current = document.Document{s.idField: row.DocID}
			currentID = row.DocID
		}
		addValue(current, row.Field, row.Value)
	}

	if current != nil {
		batch = append(batch, current)
	}
	return batch, nil
}

func (s *parquetSource) nextRow() (*FieldRow, error) {
	if s.pending != nil {
		row := s.pending
		s.pending = nil
		return row, nil
	}
	var row FieldRow
	if err := s.reader.Read(&row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *parquetSource) Close() error {
	s.reader.Close()
	return s.file.Close()
}

// addValue sets field to value, turning repeated fields into []string
func addValue(doc document.Document, field, value string) {
	switch existing := doc[field].(type) {
	case nil:
		doc[field] = value
	case string:
		doc[field] = []string{existing, value}
	case []string:
		doc[field] = append(existing, value)
	default:
		doc[field] = value
	}
}
