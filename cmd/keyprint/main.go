// Package main provides the CLI entrypoint for keyprint.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/keyprint/internal/config"
	"github.com/verte-zerg/keyprint/internal/engine"
	"github.com/verte-zerg/keyprint/internal/export"
	"github.com/verte-zerg/keyprint/internal/logging"
	"github.com/verte-zerg/keyprint/internal/match"
	"github.com/verte-zerg/keyprint/internal/model"
	"github.com/verte-zerg/keyprint/internal/stats"
	"github.com/verte-zerg/keyprint/internal/store"
)

const (
	defaultSamples            = 3
	defaultRegisterSimilarity = 0.7
	defaultMatcher            = "vote"
	defaultTiePolicy          = "all"
	defaultMinConfidence      = 0.5
	defaultIdentifySimilarity = 0.5
	defaultSource             = "tui"
	defaultTimeout            = 2 * time.Minute
	defaultLogLevel           = "warn"
	defaultLogFormat          = "text"
	defaultLogOutput          = "stderr"
)

var (
	registerSamples       int
	registerName          string
	registerEvents        []string
	registerMinSimilarity float64

	identifyEvents        string
	identifyMatcher       string
	identifyTiePolicy     string
	identifyMinConfidence float64
	identifyMinSimilarity float64

	captureSource  string
	captureDevice  string
	captureText    string
	captureTimeout time.Duration

	logLevel  string
	logFormat string
	logOutput string

	showNoPlot bool

	exportFormat       string
	exportOut          string
	importFormat       string
	importSkipExisting bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "keyprint",
		Short:         "Identify people by how they type",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", defaultLogFormat, "log format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", defaultLogOutput, "log output (stderr, stdout or a file path)")

	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newIdentifyCmd())
	rootCmd.AddCommand(newUsersCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func addCaptureFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&captureSource, "source", defaultSource, "key event source (tui or evdev)")
	cmd.Flags().StringVar(&captureDevice, "device", "", "evdev input device (default: first keyboard)")
	cmd.Flags().StringVar(&captureText, "text", "", "file with prompt paragraphs separated by blank lines")
	cmd.Flags().DurationVar(&captureTimeout, "timeout", defaultTimeout, "evdev capture timeout per sample (0 disables)")
}

// app holds what every command needs once flags and config are resolved.
type app struct {
	cfg      model.Config
	log      *logrus.Logger
	closeLog func() error
	store    *store.Store
}

func newApp(cmd *cobra.Command) (*app, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyIntConfig(cmd, "samples", &registerSamples, fileCfg.Register.Samples)
	applyFloatConfig(cmd, "min-similarity", &registerMinSimilarity, fileCfg.Register.MinSimilarity)
	applyStringConfig(cmd, "matcher", &identifyMatcher, fileCfg.Identify.Matcher)
	applyStringConfig(cmd, "tie-policy", &identifyTiePolicy, fileCfg.Identify.TiePolicy)
	applyFloatConfig(cmd, "min-confidence", &identifyMinConfidence, fileCfg.Identify.MinConfidence)
	applyFloatConfig(cmd, "min-similarity", &identifyMinSimilarity, fileCfg.Identify.MinSimilarity)
	applyStringConfig(cmd, "source", &captureSource, fileCfg.Capture.Source)
	applyStringConfig(cmd, "device", &captureDevice, fileCfg.Capture.Device)
	applyStringConfig(cmd, "text", &captureText, fileCfg.Capture.Text)
	if err := applyDurationConfig(cmd, "timeout", &captureTimeout, fileCfg.Capture.Timeout); err != nil {
		return nil, err
	}
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-format", &logFormat, fileCfg.Log.Format)
	applyStringConfig(cmd, "log-output", &logOutput, fileCfg.Log.Output)

	cfg := model.Config{
		Register: model.RegisterConfig{Samples: registerSamples, MinSimilarity: registerMinSimilarity},
		Identify: model.IdentifyConfig{
			Matcher:       identifyMatcher,
			TiePolicy:     identifyTiePolicy,
			MinConfidence: identifyMinConfidence,
			MinSimilarity: identifyMinSimilarity,
		},
		Capture: model.CaptureConfig{
			Source:  captureSource,
			Device:  captureDevice,
			Text:    captureText,
			Timeout: captureTimeout,
		},
		Log: model.LogConfig{Level: logLevel, Format: logFormat, Output: logOutput},
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	log, closeLog := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	storePath := config.DefaultDBPath()
	st, err := store.Open(storePath)
	if err != nil {
		if cerr := closeLog(); cerr != nil {
			// Best-effort close on startup failure.
			_ = cerr
		}
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	log.WithField("path", storePath).Debug("opened store")
	return &app{cfg: cfg, log: log, closeLog: closeLog, store: st}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logErrf("failed to close db: %v\n", err)
	}
	if err := a.closeLog(); err != nil {
		logErrf("failed to close log: %v\n", err)
	}
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <user>",
		Short: "Capture typing samples and register a user",
		Args:  cobra.ExactArgs(1),
		RunE:  runRegisterCmd,
	}
	cmd.Flags().IntVar(&registerSamples, "samples", defaultSamples, "number of samples to capture")
	cmd.Flags().StringVar(&registerName, "name", "", "display name (default: the user id)")
	cmd.Flags().StringArrayVar(&registerEvents, "events", nil, "recorded event log to use as a sample ('-' for stdin); repeatable")
	cmd.Flags().Float64Var(&registerMinSimilarity, "min-similarity", defaultRegisterSimilarity, "share of the prompt that must be typed correctly (0-1)")
	addCaptureFlags(cmd)
	return cmd
}

func runRegisterCmd(cmd *cobra.Command, args []string) error {
	userID := args[0]
	if err := config.ValidateUser(model.NewUser{UserID: userID, DisplayName: registerName}); err != nil {
		return err
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	eng := engine.New(a.log)
	captured, err := a.captureSamples(ctx, eng, captureRequest{
		title:         fmt.Sprintf("Registering %s", userID),
		samples:       a.cfg.Register.Samples,
		minSimilarity: a.cfg.Register.MinSimilarity,
		files:         registerEvents,
	})
	if err != nil {
		return err
	}

	display := registerName
	if display == "" {
		display = userID
	}
	for _, c := range captured {
		id, err := a.store.InsertSample(ctx, model.Sample{
			UserID:      userID,
			DisplayName: display,
			Source:      c.source,
			Features:    c.features,
		})
		if err != nil {
			return fmt.Errorf("failed to save sample: %w", err)
		}
		a.log.WithFields(logrus.Fields{"user": userID, "sample": id, "observed": c.features.Observed()}).Info("sample stored")
	}

	report, err := stats.BuildReport(ctx, a.store, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	total := len(report.Samples[userID])
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "Registered %s with %d new samples (%d total).\n\n", userID, len(captured), total); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if user, ok := report.User(userID); ok {
		if err := stats.RenderSignature(out, user, report.Samples[userID], false); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newIdentifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Capture one sample and identify the typist",
		Args:  cobra.NoArgs,
		RunE:  runIdentifyCmd,
	}
	cmd.Flags().StringVar(&identifyEvents, "events", "", "recorded event log to identify ('-' for stdin)")
	cmd.Flags().StringVar(&identifyMatcher, "matcher", defaultMatcher, "decision path (vote or model)")
	cmd.Flags().StringVar(&identifyTiePolicy, "tie-policy", defaultTiePolicy, "per-feature tie handling (all or first)")
	cmd.Flags().Float64Var(&identifyMinConfidence, "min-confidence", defaultMinConfidence, "model matcher confidence threshold (0-1)")
	cmd.Flags().Float64Var(&identifyMinSimilarity, "min-similarity", defaultIdentifySimilarity, "share of the prompt that must be typed correctly (0-1)")
	addCaptureFlags(cmd)
	return cmd
}

func runIdentifyCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	profiles, err := a.store.LoadProfiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	matcher, err := match.New(match.Kind(a.cfg.Identify.Matcher), match.Options{
		TiePolicy:     match.TiePolicy(a.cfg.Identify.TiePolicy),
		MinConfidence: a.cfg.Identify.MinConfidence,
	})
	if err != nil {
		return err
	}
	if profiles.Len() < 2 {
		return fmt.Errorf("%w: %d registered", match.ErrNotEnoughUsers, profiles.Len())
	}

	var files []string
	if identifyEvents != "" {
		files = []string{identifyEvents}
	}
	eng := engine.New(a.log)
	captured, err := a.captureSamples(ctx, eng, captureRequest{
		title:         "Identify",
		samples:       1,
		minSimilarity: a.cfg.Identify.MinSimilarity,
		files:         files,
	})
	if err != nil {
		return err
	}

	res, idErr := eng.Identify(matcher, profiles, captured[0].features)
	if idErr != nil && !errors.Is(idErr, match.ErrAmbiguousResult) {
		return idErr
	}
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.UserID] = u.DisplayName
	}
	if err := stats.RenderMatch(cmd.OutOrStdout(), res, names); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return idErr
}

func newUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE:  runUsersCmd,
	}
}

func runUsersCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := stats.BuildReport(cmd.Context(), a.store)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	if err := stats.RenderUsers(cmd.OutOrStdout(), report); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <user>",
		Short: "Show a user's typing signature",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowCmd,
	}
	cmd.Flags().BoolVar(&showNoPlot, "no-plot", false, "skip the per-sample plot")
	return cmd
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	userID := args[0]
	report, err := stats.BuildReport(cmd.Context(), a.store, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	user, ok := report.User(userID)
	if !ok {
		return fmt.Errorf("%w: %q", store.ErrUserNotFound, userID)
	}
	out := cmd.OutOrStdout()
	// Braille plots only make sense on a terminal.
	plot := !showNoPlot
	if f, ok := out.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		plot = false
	}
	if err := stats.RenderSignature(out, user, report.Samples[userID], plot); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user>",
		Short: "Remove a user and all of their samples",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemoveCmd,
	}
}

func runRemoveCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.DeleteUser(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}
	a.log.WithField("user", args[0]).Info("user removed")
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", args[0]); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every user and sample",
		Args:  cobra.NoArgs,
		RunE:  runExportCmd,
	}
	cmd.Flags().StringVar(&exportFormat, "format", "", "json, csv or yaml (default: from --out extension, else json)")
	cmd.Flags().StringVar(&exportOut, "out", "", "output file (default: stdout)")
	return cmd
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	format, err := resolveFormat(exportFormat, exportOut)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	samples, err := a.store.ListSamples(ctx)
	if err != nil {
		return fmt.Errorf("failed to list samples: %w", err)
	}

	if exportOut == "" {
		return export.Write(cmd.OutOrStdout(), format, users, samples, time.Now())
	}
	if err := writeFileAtomic(exportOut, func(f *os.File) error {
		return export.Write(f, format, users, samples, time.Now())
	}); err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}
	a.log.WithFields(logrus.Fields{"path": exportOut, "format": format, "samples": len(samples)}).Info("exported")
	return nil
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import users and samples from an export file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportCmd,
	}
	cmd.Flags().StringVar(&importFormat, "format", "", "json, csv or yaml (default: from file extension)")
	cmd.Flags().BoolVar(&importSkipExisting, "skip-existing", false, "skip samples whose id is already stored instead of failing")
	return cmd
}

func runImportCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	path := args[0]
	format, err := resolveFormat(importFormat, path)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only import file.
			_ = cerr
		}
	}()

	samples, err := export.Read(file, format)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	n, err := a.store.InsertSamples(cmd.Context(), samples, importSkipExisting)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}
	a.log.WithFields(logrus.Fields{"file": path, "imported": n, "skipped": len(samples) - n}).Info("import finished")
	msg := fmt.Sprintf("Imported %d samples.\n", n)
	if skipped := len(samples) - n; skipped > 0 {
		msg = fmt.Sprintf("Imported %d samples, skipped %d already stored.\n", n, skipped)
	}
	if _, err := fmt.Fprint(cmd.OutOrStdout(), msg); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func resolveFormat(flag, path string) (export.Format, error) {
	if flag != "" {
		return export.ParseFormat(flag)
	}
	if path == "" {
		return export.FormatJSON, nil
	}
	return export.FormatFromPath(path)
}

func writeFileAtomic(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "keyprint-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()
	if err := write(tmpFile); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
