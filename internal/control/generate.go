package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-irlearn/internal/device"
	"github.com/nerrad567/gray-logic-irlearn/internal/emit"
	"github.com/nerrad567/gray-logic-irlearn/internal/history"
	"github.com/nerrad567/gray-logic-irlearn/internal/store"
)

// DeviceLister lists stored devices.
type DeviceLister interface {
	List(ctx context.Context, f store.Filter) ([]*device.Device, error)
}

// EmissionRecorder persists a summary of each generation run.
type EmissionRecorder interface {
	RecordEmission(ctx context.Context, run *history.EmissionRun) error
}

// EmissionMetrics records generation counts.
type EmissionMetrics interface {
	WriteEmission(succeeded, failed int)
}

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	Store     DeviceLister
	Emitter   *emit.Emitter
	OutputDir string

	// History and Metrics are optional.
	History EmissionRecorder
	Metrics EmissionMetrics
	Logger  Logger
}

// Generator regenerates the configuration output from the store.
type Generator struct {
	store     DeviceLister
	emitter   *emit.Emitter
	outputDir string
	history   EmissionRecorder
	metrics   EmissionMetrics
	logger    Logger
}

// GenerateSummary is the outcome of one generation run.
type GenerateSummary struct {
	OutputDir    string               `json:"output_dir"`
	Files        []string             `json:"files"`
	SuccessCount int                  `json:"success_count"`
	Failures     []emit.DeviceFailure `json:"failures,omitempty"`
	GeneratedAt  time.Time            `json:"generated_at"`
}

// NewGenerator creates a Generator.
func NewGenerator(opts GeneratorOptions) (*Generator, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("control: generator store is required")
	case opts.Emitter == nil:
		return nil, errors.New("control: generator emitter is required")
	case opts.OutputDir == "":
		return nil, errors.New("control: generator output dir is required")
	}
	g := &Generator{
		store:     opts.Store,
		emitter:   opts.Emitter,
		outputDir: opts.OutputDir,
		history:   opts.History,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if g.logger == nil {
		g.logger = noopLogger{}
	}
	return g, nil
}

// Generate renders every enabled device and writes the documents. Device
// failures do not stop the run; they are listed in the summary and the
// *emit.PartialEmissionFailure is returned with it.
func (g *Generator) Generate(ctx context.Context) (*GenerateSummary, error) {
	devices, err := g.store.List(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	res, genErr := g.emitter.Generate(ctx, devices)
	var partial *emit.PartialEmissionFailure
	if genErr != nil && !errors.As(genErr, &partial) {
		return nil, fmt.Errorf("generating: %w", genErr)
	}

	if err := emit.WriteFiles(g.outputDir, res.Documents); err != nil {
		return nil, fmt.Errorf("writing output: %w", err)
	}

	summary := &GenerateSummary{
		OutputDir:    g.outputDir,
		Files:        make([]string, 0, len(res.Documents)),
		SuccessCount: res.SuccessCount,
		Failures:     res.Failures,
		GeneratedAt:  res.GeneratedAt,
	}
	for _, doc := range res.Documents {
		summary.Files = append(summary.Files, doc.Filename)
	}

	if g.history != nil {
		run := &history.EmissionRun{
			SuccessCount: res.SuccessCount,
			FailureCount: len(res.Failures),
			OutputDir:    g.outputDir,
		}
		if partial != nil {
			run.Detail = partial.Error()
		}
		if err := g.history.RecordEmission(ctx, run); err != nil {
			g.logger.Warn("recording emission failed", "error", err)
		}
	}
	if g.metrics != nil {
		g.metrics.WriteEmission(res.SuccessCount, len(res.Failures))
	}

	g.logger.Info("configuration generated",
		"dir", g.outputDir,
		"succeeded", res.SuccessCount,
		"failed", len(res.Failures),
	)

	if partial != nil {
		return summary, partial
	}
	return summary, nil
}
