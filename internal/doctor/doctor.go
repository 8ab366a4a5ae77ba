// Package doctor runs runtime readiness diagnostics for config, credentials,
// audio devices, and the external collaborators.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/exchange"
)

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

// Run executes environment/config/collaborator checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkAPIKey(cfg.Config.Exchange))
	checks = append(checks, checkAudioSource(cfg.Config))
	checks = append(checks, checkAudioSink(cfg.Config))

	if cfg.Config.Archive.Enable {
		checks = append(checks, checkArchiveReady(cfg.Config.Archive))
	}
	if strings.TrimSpace(cfg.Config.Exchange.GRPCHealth) != "" {
		checks = append(checks, checkExchangeSidecar(cfg.Config.Exchange))
	}

	return Report{Checks: checks}
}

// checkAPIKey verifies the configured provider credential is present in the
// environment without printing it.
func checkAPIKey(cfg config.ExchangeConfig) Check {
	name := strings.TrimSpace(cfg.APIKeyEnv)
	if name == "" {
		return Check{Name: "exchange.key", Pass: false, Message: "exchange.api_key_env is empty"}
	}
	if strings.TrimSpace(os.Getenv(name)) == "" {
		return Check{Name: "exchange.key", Pass: false, Message: fmt.Sprintf("environment variable %s is not set", name)}
	}
	return Check{Name: "exchange.key", Pass: true, Message: fmt.Sprintf("%s is set (provider %q)", name, cfg.Provider)}
}

// checkAudioSource runs live device selection to surface selection/fallback issues.
func checkAudioSource(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.source", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.source", Pass: true, Message: message}
}

// checkAudioSink verifies a playback sink resolves for spoken replies.
func checkAudioSink(cfg config.Config) Check {
	sinks, err := audio.ListSinks(context.Background())
	if err != nil {
		return Check{Name: "audio.sink", Pass: false, Message: err.Error()}
	}
	sink, err := audio.SelectSink(sinks, cfg.Audio.Output)
	if err != nil {
		return Check{Name: "audio.sink", Pass: false, Message: err.Error()}
	}
	return Check{Name: "audio.sink", Pass: true, Message: fmt.Sprintf("selected %q", sink.ID)}
}

// checkArchiveReady probes the archive service's health endpoint.
func checkArchiveReady(cfg config.ArchiveConfig) Check {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return Check{Name: "archive.ready", Pass: false, Message: "archive.base_url is empty"}
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := strings.TrimRight(base, "/") + "/healthz"
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return Check{Name: "archive.ready", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 256))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: "archive.ready", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: "archive.ready", Pass: true, Message: fmt.Sprintf("ready at %s", url)}
}

// checkExchangeSidecar waits for the optional gRPC transcription sidecar to
// report a usable connectivity state.
func checkExchangeSidecar(cfg config.ExchangeConfig) Check {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := exchange.ProbeGRPC(ctx, cfg.GRPCHealth, 3*time.Second); err != nil {
		return Check{Name: "exchange.sidecar", Pass: false, Message: err.Error()}
	}
	return Check{Name: "exchange.sidecar", Pass: true, Message: fmt.Sprintf("ready at %s", cfg.GRPCHealth)}
}
