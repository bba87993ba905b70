// Package doctor runs readiness diagnostics for config, credentials, audio, and the speech backend.
package doctor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rbright/olivia/internal/audio"
	"github.com/rbright/olivia/internal/config"
)

const healthTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes config, credential, audio and backend checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{configCheck(cfg)}

	checks = append(checks,
		checkAPIKey("stt.api_key_env", cfg.Config.STT.APIKeyEnv),
		checkAPIKey("tts.api_key_env", cfg.Config.TTS.APIKeyEnv),
		checkAPIKey("llm.api_key_env", cfg.Config.LLM.APIKeyEnv),
	)

	checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	checks = append(checks, checkSTTHealth(ctx, cfg.Config.STT.HealthGRPC))

	return Report{Checks: checks}
}

func configCheck(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", cfg.Path)}
	}
	message := fmt.Sprintf("loaded %q", cfg.Path)
	if n := len(cfg.Warnings); n > 0 {
		message += fmt.Sprintf(" (%d warnings)", n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkAPIKey reports whether the variable named by a config key is set. The value is never printed.
func checkAPIKey(key string, envName string) Check {
	envName = strings.TrimSpace(envName)
	if envName == "" {
		return Check{Name: key, Pass: false, Message: "no environment variable configured"}
	}
	check := checkEnv(envName, func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "set", fmt.Sprintf("%s is empty", envName))
	check.Name = key
	return check
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkSTTHealth probes the optional gRPC health endpoint of the speech backend.
func checkSTTHealth(ctx context.Context, endpoint string) Check {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return Check{Name: "stt.health", Pass: true, Message: "health_grpc not configured; skipped"}
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	status, err := probeHealth(ctx, endpoint)
	if err != nil {
		return Check{Name: "stt.health", Pass: false, Message: err.Error()}
	}
	if status != servingStatus {
		return Check{Name: "stt.health", Pass: false, Message: fmt.Sprintf("%s reports %s", endpoint, status)}
	}
	return Check{Name: "stt.health", Pass: true, Message: fmt.Sprintf("serving at %s", endpoint)}
}
