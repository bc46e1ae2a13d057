package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/gokaycavdar/go-nightguard/pkg/baseline"
	"github.com/gokaycavdar/go-nightguard/pkg/engine"
	"github.com/gokaycavdar/go-nightguard/pkg/models"
	"github.com/gokaycavdar/go-nightguard/pkg/normalize"
	"github.com/gokaycavdar/go-nightguard/pkg/storage"
)

// ErrNoTargetDate is returned when a fetch-based investigation is started
// without a target date. Only CSV analysis may derive it from the data.
var ErrNoTargetDate = errors.New("investigation requires a target date")

// NormalizationObserver receives the normalizer counters of every run.
type NormalizationObserver interface {
	ObserveNormalization(duplicates, dropped int)
}

// Investigation wires the baseline assembler, normalizer and engine into a
// single run. Archive and Observer are optional.
type Investigation struct {
	Assembler *baseline.Assembler
	Engine    *engine.Engine
	Archive   storage.ConnectionStore
	Observer  NormalizationObserver

	// Organization and Network are stamped on every fetched connection.
	Organization string
	Network      string
}

// Report is everything one investigation produced.
type Report struct {
	Run         *engine.Run
	Connections []models.ConnectionEvent
	Analysis    *models.Analysis

	// Baseline is nil for CSV analysis.
	Baseline *baseline.Result

	// Archived counts connections newly written to the archive.
	Archived int
}

// Investigate fetches the baseline nights and the target night from src,
// normalizes both into one stream and classifies it.
func (inv *Investigation) Investigate(ctx context.Context, run *engine.Run, src baseline.EventSource) (*Report, error) {
	if !run.HasTargetDate() {
		return nil, ErrNoTargetDate
	}
	asm := inv.Assembler
	if asm == nil {
		asm = baseline.NewAssembler()
	}

	base, err := asm.Assemble(ctx, run, src, run.TargetDate)
	if err != nil {
		return nil, fmt.Errorf("assemble baseline: %w", err)
	}
	target, err := asm.Target(ctx, run, src, run.TargetDate)
	if err != nil {
		return nil, fmt.Errorf("fetch target: %w", err)
	}

	n := normalize.New(inv.Organization, inv.Network)
	n.Add(base.Events...)
	n.Add(target...)
	inv.observe(run, n)

	report := &Report{
		Run:         run,
		Connections: n.Events(),
		Baseline:    base,
	}

	if inv.Archive != nil && len(report.Connections) > 0 {
		saved, err := inv.Archive.Save(ctx, report.Connections)
		if err != nil {
			// The archive is a side output; the analysis still stands.
			run.Log().Warn("archive write failed", "error", err)
		} else {
			report.Archived = saved
		}
	}

	report.Analysis = inv.Engine.Classify(run, report.Connections)
	return report, nil
}

// Analyze classifies already collected connections, such as a CSV export.
// Repeated rows are collapsed before classification. When the run has no
// target date the engine derives it from the latest connection.
func (inv *Investigation) Analyze(run *engine.Run, conns []models.ConnectionEvent) *Report {
	n := normalize.New(inv.Organization, inv.Network)
	n.AddConnections(conns...)
	inv.observe(run, n)

	events := n.Events()
	return &Report{
		Run:         run,
		Connections: events,
		Analysis:    inv.Engine.Classify(run, events),
	}
}

// AnalyzeRaw normalizes collector-shaped events and classifies them, as
// Analyze does for canonical connections.
func (inv *Investigation) AnalyzeRaw(run *engine.Run, raws []models.RawEvent) *Report {
	n := normalize.New(inv.Organization, inv.Network)
	n.Add(raws...)
	inv.observe(run, n)

	events := n.Events()
	return &Report{
		Run:         run,
		Connections: events,
		Analysis:    inv.Engine.Classify(run, events),
	}
}

func (inv *Investigation) observe(run *engine.Run, n *normalize.Normalizer) {
	if n.Duplicates() > 0 || n.Dropped() > 0 {
		run.Log().Debug("normalization",
			"events", n.Len(),
			"duplicates", n.Duplicates(),
			"dropped", n.Dropped(),
		)
	}
	if inv.Observer != nil {
		inv.Observer.ObserveNormalization(n.Duplicates(), n.Dropped())
	}
}
