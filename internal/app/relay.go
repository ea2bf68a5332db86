// Package app contains the top-level orchestration for the relay and the
// headless peer roles.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/relay"
	"github.com/1ureka/rtcall/internal/util"
)

// shutdownWait bounds the graceful HTTP shutdown.
const shutdownWait = 5 * time.Second

// RunRelay serves the signaling relay until ctx is cancelled.
func RunRelay(ctx context.Context, cfg *config.Config) error {
	server := relay.NewServer(cfg.PIN)
	port, err := server.Start(cfg.Listen)
	if err != nil {
		return err
	}

	pin := cfg.PIN
	if pin == "" {
		pin = "(none)"
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║         WebSocket Signaling Relay        ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Port   : %-30d ║\n", port)
	fmt.Printf("║  PIN    : %-30s ║\n", pin)
	fmt.Printf("║  Stream : %-30s ║\n", config.StreamPath)
	fmt.Println("╚══════════════════════════════════════════╝")
	fmt.Println()

	util.StartStatsReporter(ctx)
	util.LogSuccess("relay listening on port %d, demo at http://localhost:%d/", port, port)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	return server.Close(shutdownCtx)
}
