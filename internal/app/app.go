// Package app dispatches CLI commands and wires a conversation session together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/olivia/internal/audio"
	"github.com/rbright/olivia/internal/cli"
	"github.com/rbright/olivia/internal/companion"
	"github.com/rbright/olivia/internal/config"
	"github.com/rbright/olivia/internal/doctor"
	"github.com/rbright/olivia/internal/guard"
	"github.com/rbright/olivia/internal/ipc"
	"github.com/rbright/olivia/internal/llm"
	"github.com/rbright/olivia/internal/logging"
	"github.com/rbright/olivia/internal/metrics"
	"github.com/rbright/olivia/internal/nudge"
	"github.com/rbright/olivia/internal/persona"
	"github.com/rbright/olivia/internal/pipeline"
	"github.com/rbright/olivia/internal/sessionlog"
	"github.com/rbright/olivia/internal/stt"
	"github.com/rbright/olivia/internal/tts"
	"github.com/rbright/olivia/internal/version"
)

const binaryName = "olivia"

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(cfgLoaded.Config.Log.Level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		if err := loadEnvFile(cfgLoaded.Config.EnvFile); err != nil {
			fmt.Fprintf(r.Stderr, "warning: %v\n", err)
		}
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, err := ipc.Forward(ctx, socketPath, ipc.CommandStatus)
	switch {
	case errors.Is(err, ipc.ErrNoSession):
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	case err != nil:
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	fmt.Fprintf(r.Stdout, "%s turn=%d\n", resp.State, resp.Turn)
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, err := ipc.Forward(ctx, socketPath, command)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{Logger: logger})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	if err := loadEnvFile(cfg.EnvFile); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	sessionLog, err := sessionlog.Open(cfg.SessionLog.Path)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = sessionLog.Close() }()

	recorder := metrics.NewRecorder()
	deps, err := buildDeps(cfg, sessionLog, recorder, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	comp := companion.New(cfg, deps)

	logger.Info("session log", "session_id", comp.SessionID(), "path", sessionLog.Path())

	group, groupCtx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(groupCtx)
	defer stopServing()

	group.Go(func() error {
		return ipc.Serve(serveCtx, listener, comp, logger)
	})
	if addr := strings.TrimSpace(cfg.Metrics.Listen); addr != "" {
		group.Go(func() error {
			return recorder.Serve(serveCtx, addr)
		})
	}

	var result companion.Result
	group.Go(func() error {
		defer stopServing()
		result = comp.Run(groupCtx)
		return nil
	})

	if err := group.Wait(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logSessionResult(logger, result)

	if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "session %s ended after %d turns\n", result.SessionID, result.Turns)
	return 0
}

// buildDeps resolves credentials and constructs every collaborator of one session.
func buildDeps(cfg config.Config, log companion.SessionLog, recorder *metrics.Recorder, logger *slog.Logger) (companion.Deps, error) {
	llmKey, err := requireEnv(cfg.LLM.APIKeyEnv)
	if err != nil {
		return companion.Deps{}, fmt.Errorf("llm api key: %w", err)
	}
	sttKey := strings.TrimSpace(os.Getenv(cfg.STT.APIKeyEnv))
	ttsKey := strings.TrimSpace(os.Getenv(cfg.TTS.APIKeyEnv))

	p, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		return companion.Deps{}, err
	}

	client := llm.NewClient(llm.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            llmKey,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokensDefault,
		Timeout:           cfg.LLM.Timeout(),
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})

	player := tts.NewPlayer(tts.PlayerConfig{Tail: cfg.TTS.Tail(), Settle: cfg.TTS.Settle()})
	speaker := tts.NewSpeaker(
		tts.NewClient(tts.Config{URL: cfg.TTS.URL, APIKey: ttsKey}),
		player,
		tts.Voice{
			LanguageCode: cfg.TTS.LanguageCode,
			Name:         cfg.TTS.Voice,
			SpeakingRate: cfg.TTS.SpeakingRate,
			Pitch:        cfg.TTS.Pitch,
			GainDB:       cfg.TTS.GainDB,
			SampleRate:   cfg.TTS.SampleRate,
		},
		logger,
	)

	listener := pipeline.NewListener(pipeline.Config{
		Input:    cfg.Audio.Input,
		Fallback: cfg.Audio.Fallback,
		FrameMS:  cfg.Audio.FrameMS,
		Stream: stt.StreamConfig{
			URL:                  cfg.STT.StreamURL,
			APIKey:               sttKey,
			LanguageCode:         cfg.STT.LanguageCode,
			Model:                cfg.STT.Model,
			AutomaticPunctuation: cfg.STT.AutomaticPunctuation,
			DialTimeout:          cfg.STT.DialTimeout(),
			CloseTimeout:         cfg.STT.CloseTimeout(),
		},
		AudioDump: cfg.Debug.EnableAudioDump,
	}, logger)

	return companion.Deps{
		Listener: listener,
		Recognizer: stt.NewRecognizer(stt.RecognizerConfig{
			URL:                  cfg.STT.RecognizeURL,
			APIKey:               sttKey,
			Model:                cfg.STT.Model,
			AutomaticPunctuation: cfg.STT.AutomaticPunctuation,
		}),
		Generator: guard.Filtered(client),
		Guard:     guard.New(client, logger),
		Speaker:   speaker,
		Cue:       player,
		Log:       log,
		Nudges:    nudge.NewSelector(nil),
		Persona:   p,
		Metrics:   recorder,
		Logger:    logger,
	}, nil
}

// loadEnvFile loads an explicit env file, or ./.env when one exists. Set variables are not overridden.
func loadEnvFile(path string) error {
	if path = strings.TrimSpace(path); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %q: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func requireEnv(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("no environment variable configured")
	}
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("%s is not set", name)
	}
	return value, nil
}

func logSessionResult(logger *slog.Logger, result companion.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"session_id", result.SessionID,
		"state", result.State,
		"turns", result.Turns,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}
