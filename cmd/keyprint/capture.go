package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/verte-zerg/keyprint/internal/capture"
	"github.com/verte-zerg/keyprint/internal/config"
	"github.com/verte-zerg/keyprint/internal/engine"
	"github.com/verte-zerg/keyprint/internal/features"
	"github.com/verte-zerg/keyprint/internal/prompt"
	"github.com/verte-zerg/keyprint/internal/tui"
)

// maxRetries bounds rejected evdev samples before giving up.
const maxRetries = 3

// errTextMismatch marks a live sample whose typed text strays too far from
// the prompt.
var errTextMismatch = errors.New("typed text does not match the prompt")

type capturedSample struct {
	features features.FeatureVector
	source   string
}

type captureRequest struct {
	title   string
	samples int
	// minSimilarity applies to live capture only; event logs carry no prompt.
	minSimilarity float64
	files         []string
}

// captureSamples collects samples from the configured source. Event log
// files, when given, replace live capture with one sample per file; a piped
// stdin counts as one such file.
func (a *app) captureSamples(ctx context.Context, eng *engine.Engine, req captureRequest) ([]capturedSample, error) {
	files := req.files
	if len(files) == 0 && !term.IsTerminal(int(os.Stdin.Fd())) {
		files = []string{"-"}
	}
	if len(files) > 0 {
		return a.replayFiles(eng, files)
	}

	paragraphs, err := a.loadParagraphs()
	if err != nil {
		return nil, err
	}
	switch a.cfg.Capture.Source {
	case "evdev":
		return a.captureEvdev(ctx, eng, paragraphs, req)
	default:
		return a.captureTUI(ctx, eng, paragraphs, req)
	}
}

func (a *app) replayFiles(eng *engine.Engine, files []string) ([]capturedSample, error) {
	out := make([]capturedSample, 0, len(files))
	for _, path := range files {
		events, err := readEventLog(path)
		if err != nil {
			return nil, err
		}
		eng.StartSession()
		capture.Replay(events, eng.Handler())
		fv, err := eng.EndSession()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", displayPath(path), err)
		}
		out = append(out, capturedSample{features: fv, source: "events"})
	}
	return out, nil
}

func readEventLog(path string) ([]capture.RawEvent, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
		defer func() {
			if cerr := file.Close(); cerr != nil {
				// Best-effort close for read-only event log.
				_ = cerr
			}
		}()
		r = file
	}
	events, err := capture.ParseEventLog(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", displayPath(path), err)
	}
	return events, nil
}

func displayPath(path string) string {
	if path == "-" {
		return "stdin"
	}
	return path
}

// loadParagraphs resolves the prompt text. A bare name is looked up in the
// prompts directory.
func (a *app) loadParagraphs() ([]string, error) {
	path := a.cfg.Capture.Text
	if path == "" {
		return prompt.Builtin(), nil
	}
	if !strings.ContainsRune(path, os.PathSeparator) {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = filepath.Join(config.DefaultPromptDir(), path)
		}
	}
	paragraphs, err := prompt.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt text: %w", err)
	}
	for i, p := range paragraphs {
		if missing := prompt.Missing(p); len(missing) > 0 {
			a.log.WithField("paragraph", i+1).WithField("missing", missing).Warn("prompt does not exercise every feature")
		}
	}
	return paragraphs, nil
}

func (a *app) captureTUI(ctx context.Context, eng *engine.Engine, paragraphs []string, req captureRequest) ([]capturedSample, error) {
	m := tui.NewModel(eng, tui.Options{
		Title:         req.title,
		Paragraphs:    paragraphs,
		Samples:       req.samples,
		MinSimilarity: req.minSimilarity,
	})
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return nil, fmt.Errorf("failed to run TUI: %w", err)
	}
	if m.Aborted() {
		return nil, errors.New("capture aborted")
	}
	if rejected := m.Rejected(); rejected > 0 {
		a.log.WithField("rejected", rejected).Info("short or mistyped samples were discarded")
	}
	samples := m.Samples()
	out := make([]capturedSample, len(samples))
	for i, fv := range samples {
		out[i] = capturedSample{features: fv, source: "tui"}
	}
	return out, nil
}

func (a *app) captureEvdev(ctx context.Context, eng *engine.Engine, paragraphs []string, req captureRequest) ([]capturedSample, error) {
	n := req.samples
	src, err := capture.OpenEvdev(a.cfg.Capture.Device)
	if err != nil {
		return nil, err
	}
	a.log.WithField("device", src.Path()).Debug("reading keyboard")

	var out []capturedSample
	for attempt := 0; len(out) < n; attempt++ {
		if attempt-len(out) >= maxRetries {
			return nil, fmt.Errorf("capture failed: %d samples were rejected", maxRetries)
		}
		text := prompt.Pick(paragraphs, len(out))
		logErrf("\nSample %d of %d. Type the text below, then press Esc:\n\n%s\n\n", len(out)+1, n, text)

		fv, err := a.captureEvdevSample(ctx, eng, src, text, req.minSimilarity)
		switch {
		case errors.Is(err, features.ErrInsufficientData):
			logErrf("Need at least %d keystrokes, try again.\n", features.MinEvents)
			continue
		case errors.Is(err, errTextMismatch):
			logErrf("%v, try again.\n", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, capturedSample{features: fv, source: "evdev"})
	}
	return out, nil
}

func (a *app) captureEvdevSample(ctx context.Context, eng *engine.Engine, src capture.Source, target string, minSimilarity float64) (features.FeatureVector, error) {
	var (
		sctx   context.Context
		cancel context.CancelFunc
	)
	if timeout := a.cfg.Capture.Timeout; timeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		sctx, cancel = context.WithCancel(ctx)
	}
	// Cancelling closes the device and stops its reader.
	defer cancel()

	events, err := src.Events(sctx)
	if err != nil {
		return features.FeatureVector{}, err
	}
	eng.StartSession()
	transcript := capture.NewTranscript(eng.Handler())
	if err := capture.Run(sctx, events, transcript); err != nil {
		if _, endErr := eng.EndSession(); endErr != nil {
			a.log.WithError(endErr).Debug("discarded interrupted session")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return features.FeatureVector{}, fmt.Errorf("no Esc within %s", a.cfg.Capture.Timeout)
		}
		return features.FeatureVector{}, err
	}
	fv, err := eng.EndSession()
	if err != nil {
		return features.FeatureVector{}, err
	}
	if sim := prompt.Similarity(transcript.Text(), target); sim < minSimilarity {
		return features.FeatureVector{}, fmt.Errorf("%w: %.0f%% typed correctly, %.0f%% needed", errTextMismatch, sim*100, minSimilarity*100)
	}
	return fv, nil
}
