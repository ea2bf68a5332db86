// Command rtcall is the CLI entry point.
//
// One binary runs every party of a one-to-one WebRTC video call: the
// WebSocket signaling relay (which also serves the browser demo), and a
// headless peer that publishes an IVF file and records the remote video.
//
// It can be launched interactively (no --role) or non-interactively via
// flags and RTCALL_* environment variables.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/rtcall/internal/app"
	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		util.LogError("%v", err)
		os.Exit(2)
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Printfln("rtcall v%s", version)
	pterm.Println()

	if cfg.Role == "" {
		askRole(cfg)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	switch cfg.Role {
	case config.RoleRelay:
		err = app.RunRelay(ctx, cfg)
	default:
		err = app.RunPeer(ctx, cfg)
	}
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("shut down cleanly")
}

// ---------------------------------------------------------------------------
// Interactive prompts
// ---------------------------------------------------------------------------

// askRole falls back to interactive prompts when no --role is provided. Only
// values still missing are asked for.
func askRole(cfg *config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Relay  : Run the signaling relay",
			"Caller : Call a remote user",
			"Callee : Wait for a call",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(role, "Relay"):
		cfg.Role = config.RoleRelay
		return
	case strings.HasPrefix(role, "Caller"):
		cfg.Role = config.RoleCaller
	default:
		cfg.Role = config.RoleCallee
	}

	if cfg.URL == "" {
		cfg.URL = askURL()
	}
	if cfg.ID == "" {
		cfg.ID = askText("Your user id")
	}
	if cfg.Peer == "" {
		cfg.Peer = askText("Remote user id")
	}
}

// askURL prompts the user for a valid relay URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. ws://localhost:8082)").
			Show()

		wsURL, err := config.NormalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askText prompts until a non-empty value is entered.
func askText(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		if value := strings.TrimSpace(raw); value != "" {
			pterm.Println()
			return value
		}

		util.LogWarning("value must not be empty")
		pterm.Println()
	}
}
