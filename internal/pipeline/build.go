package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/config"
	"github.com/Jyllands-Posten/solrprocessors/internal/htmlstrip"
	"github.com/Jyllands-Posten/solrprocessors/internal/replace"
)

// DefaultName is the name of the pipeline built from the processors section
const DefaultName = "default"

// Build constructs the processor chain described by cfgs. Any invalid
// processor fails the whole build.
func Build(cfgs []config.ProcessorConfig, log *zap.Logger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := config.ValidateProcessors(cfgs); err != nil {
		return nil, err
	}

	stages := make([]Stage, 0, len(cfgs))
	for _, pc := range cfgs {
		stage, err := buildStage(pc, log.With(zap.String("processor", pc.Name)))
		if err != nil {
			return nil, fmt.Errorf("processor %q: %w", pc.Name, err)
		}
		stages = append(stages, stage)
	}

	fp, err := fingerprint(cfgs)
	if err != nil {
		return nil, err
	}
	p := New(DefaultName, stages...).WithFingerprint(fp)
	p.logger = log

	log.Info("Processor pipeline built",
		zap.Strings("stages", p.Stages()),
		zap.String("fingerprint", fp[:12]))

	return p, nil
}

func buildStage(pc config.ProcessorConfig, log *zap.Logger) (Stage, error) {
	switch pc.Type {
	case config.ProcessorPatternReplace:
		engine, err := replace.NewFromConfig(*pc.PatternReplace, replace.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return Transform(pc.Name, engine.Process), nil
	case config.ProcessorHTMLStrip:
		stripper := htmlstrip.New(pc.HTMLStrip.Fields, log)
		return Transform(pc.Name, stripper.Process), nil
	default:
		return nil, fmt.Errorf("unknown processor type %q", pc.Type)
	}
}

// fingerprint hashes the processor configuration
func fingerprint(cfgs []config.ProcessorConfig) (string, error) {
	data, err := json.Marshal(cfgs)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint processors: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
