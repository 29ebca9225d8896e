// Command canvas-mcp starts an MCP server exposing a Canvas LMS
// instance to AI agents, either over stdio (one process, one session)
// or over a session-multiplexed HTTP/SSE gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rusq/osenv/v2"

	"github.com/edtools/canvas-mcp/internal/canvas"
	"github.com/edtools/canvas-mcp/internal/gateway"
	"github.com/edtools/canvas-mcp/internal/mcp"
)

// secrets are optionally loaded from .env in the current directory.
var _ = godotenv.Load()

const (
	transportStdio = "stdio"
	transportSSE   = "sse"
)

var (
	transport  = flag.String("transport", defaultTransport(), "MCP transport: \"stdio\" or \"sse\"")
	listenAddr = flag.String("listen", defaultListenAddr(), "address to listen on when -transport=sse")
	verbose    = flag.Bool("v", false, "verbose (debug) logging")
)

// defaultTransport selects the transport from the environment: a PORT
// selection switches to network mode, otherwise local stdio mode.
func defaultTransport() string {
	if osenv.Value("PORT", "") != "" {
		return transportSSE
	}
	return transportStdio
}

func defaultListenAddr() string {
	if port := osenv.Value("PORT", ""); port != "" {
		return ":" + port
	}
	return "127.0.0.1:8400"
}

func main() {
	flag.Parse()

	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}
	// stdout carries the protocol in stdio mode; logs go to stderr.
	lg := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(lg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, lg); err != nil {
		lg.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, lg *slog.Logger) error {
	token := osenv.Secret("CANVAS_API_TOKEN", "")
	if token == "" {
		return errors.New("CANVAS_API_TOKEN is not set; an access token is required to start")
	}
	baseURL := osenv.Value("CANVAS_BASE_URL", canvas.DefaultBaseURL)

	client, err := canvas.New(baseURL, token, canvas.WithLogger(lg))
	if err != nil {
		return fmt.Errorf("canvas client: %w", err)
	}
	lg.InfoContext(ctx, "canvas client initialised", "base_url", client.BaseURL())

	switch *transport {
	case transportStdio:
		srv := mcp.New(client, mcp.WithLogger(lg))
		return srv.ServeStdio(ctx)
	case transportSSE:
		gw, err := gateway.New(gateway.Config{Name: mcp.ServerName, Logger: lg}, func() gateway.Conversation {
			return mcp.New(client, mcp.WithLogger(lg))
		})
		if err != nil {
			return err
		}
		return gw.ListenAndServe(ctx, *listenAddr)
	default:
		return fmt.Errorf("invalid transport %q: must be %q or %q", *transport, transportStdio, transportSSE)
	}
}
