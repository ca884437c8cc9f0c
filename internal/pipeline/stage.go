package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Jyllands-Posten/solrprocessors/internal/document"
)

// Stage is one processor in a pipeline.
type Stage interface {
	Name() string
	Process(ctx context.Context, doc document.Document) (document.Document, error)
}

type transform struct {
	name string
	fn   func(document.Document) document.Document
}

// Transform wraps a processor that cannot fail.
func Transform(name string, fn func(document.Document) document.Document) Stage {
	return &transform{name: name, fn: fn}
}

func (t *transform) Name() string { return t.name }

func (t *transform) Process(_ context.Context, doc document.Document) (document.Document, error) {
	return t.fn(doc), nil
}

// StageError reports which stage of which pipeline failed.
type StageError struct {
	Pipeline string
	Stage    string
	Index    int
	Err      error
	Duration time.Duration
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline %q: stage %d (%s) failed after %v: %v", e.Pipeline, e.Index, e.Stage, e.Duration, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
