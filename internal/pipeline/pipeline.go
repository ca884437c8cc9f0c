package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/document"
)

// Result is the outcome of running a document through a pipeline.
type Result struct {
	Document document.Document `json:"document"`
	Modified []string          `json:"modified"`
	Duration time.Duration     `json:"duration"`
}

// Event describes one processed document. Err is set when a stage failed.
type Event struct {
	Pipeline string
	Modified []string
	Duration time.Duration
	Err      error
}

// Observer is notified after every Process call.
type Observer func(ctx context.Context, ev Event)

// Pipeline runs documents through an ordered list of stages. A pipeline is
// immutable apart from its observers and safe for concurrent use.
type Pipeline struct {
	name        string
	stages      []Stage
	fingerprint string
	logger      *zap.Logger

	mu        sync.RWMutex
	observers []Observer
}

// New creates a pipeline running stages in the given order. Its default
// fingerprint covers only the pipeline and stage names; use WithFingerprint
// when stages carry configuration of their own.
func New(name string, stages ...Stage) *Pipeline {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	sum := sha256.Sum256([]byte(name + "\x00" + strings.Join(names, "\x00")))

	return &Pipeline{
		name:        name,
		stages:      stages,
		fingerprint: hex.EncodeToString(sum[:]),
		logger:      zap.NewNop(),
	}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// WithFingerprint replaces the fingerprint and returns p. It must be called
// before the pipeline is shared.
func (p *Pipeline) WithFingerprint(fp string) *Pipeline {
	p.fingerprint = fp
	return p
}

// Fingerprint identifies the processing performed by the pipeline. Pipelines
// built from equal processor configuration share a fingerprint; for
// pipelines assembled with New it is only as precise as the value given to
// WithFingerprint.
func (p *Pipeline) Fingerprint() string { return p.fingerprint }

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Stage returns a single-stage pipeline for the named stage. Observers
// registered so far are carried over.
func (p *Pipeline) Stage(name string) (*Pipeline, bool) {
	for _, s := range p.stages {
		if s.Name() == name {
			sub := New(p.name+"/"+name, s)
			sum := sha256.Sum256([]byte(p.fingerprint + "\x00" + name))
			sub.fingerprint = hex.EncodeToString(sum[:])
			sub.logger = p.logger
			p.mu.RLock()
			sub.observers = slices.Clone(p.observers)
			p.mu.RUnlock()
			return sub, true
		}
	}
	return nil, false
}

// OnProcessed registers an observer.
func (p *Pipeline) OnProcessed(fn Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// Process runs doc through every stage in order. The input document is not
// modified. The first failing stage aborts the run with a *StageError.
func (p *Pipeline) Process(ctx context.Context, doc document.Document) (*Result, error) {
	start := time.Now()
	current := doc.Clone()
	if current == nil {
		current = document.Document{}
	}

	for i, stage := range p.stages {
		stageStart := time.Now()
		if err := ctx.Err(); err != nil {
			return nil, p.fail(ctx, i, stage, err, stageStart, start)
		}

		out, err := stage.Process(ctx, current)
		if err != nil {
			return nil, p.fail(ctx, i, stage, err, stageStart, start)
		}
		if out != nil {
			current = out
		}
	}

	res := &Result{
		Document: current,
		Modified: document.Changed(doc, current),
		Duration: time.Since(start),
	}
	if res.Modified == nil {
		res.Modified = []string{}
	}

	p.logger.Debug("Document processed",
		zap.String("pipeline", p.name),
		zap.Strings("modified", res.Modified),
		zap.Duration("duration", res.Duration))

	p.notify(ctx, Event{Pipeline: p.name, Modified: res.Modified, Duration: res.Duration})
	return res, nil
}

func (p *Pipeline) fail(ctx context.Context, index int, stage Stage, err error, stageStart, start time.Time) error {
	serr := &StageError{
		Pipeline: p.name,
		Stage:    stage.Name(),
		Index:    index,
		Err:      err,
		Duration: time.Since(stageStart),
	}
	p.logger.Warn("Pipeline stage failed",
		zap.String("pipeline", p.name),
		zap.String("stage", serr.Stage),
		zap.Int("index", index),
		zap.Error(err))
	p.notify(ctx, Event{Pipeline: p.name, Duration: time.Since(start), Err: serr})
	return serr
}

func (p *Pipeline) notify(ctx context.Context, ev Event) {
	p.mu.RLock()
	observers := p.observers
	p.mu.RUnlock()

	for _, fn := range observers {
		fn(ctx, ev)
	}
}
