// Command kolony talks to the Kolony functions from a terminal:
//
//	kolony chat [flags] <message...>
//	kolony campaign -prompt <text> [-location L] [-audience A] [-brand-image URL]
//
// Connection flags (-base-url, -access-token, ...) and their environment
// variables are shared with the gateway.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zhengjr9/kolony/internal/campaign"
	"github.com/zhengjr9/kolony/internal/chat"
	"github.com/zhengjr9/kolony/internal/config"
	apierrors "github.com/zhengjr9/kolony/internal/errors"
	"github.com/zhengjr9/kolony/internal/kolony"
	"github.com/zhengjr9/kolony/internal/logger"
	"github.com/zhengjr9/kolony/internal/session"
)

const (
	exitOK        = 0
	exitError     = 1
	exitUsage     = 2
	exitCancelled = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: kolony <chat|campaign> [flags]")
		return exitUsage
	}
	switch args[0] {
	case "chat":
		return runChat(ctx, args[1:], stdout, stderr)
	case "campaign":
		return runCampaign(ctx, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		return exitUsage
	}
}

// setup parses the shared connection flags on fs and builds the transport.
func setup(fs *flag.FlagSet, args []string, stderr io.Writer) (*kolony.Client, session.Provider, bool) {
	fs.SetOutput(stderr)
	cfg, err := config.Parse(fs, args)
	if err != nil {
		if err != flag.ErrHelp {
			fmt.Fprintln(stderr, err)
		}
		return nil, nil, false
	}
	log := logger.NewWithWriter(stderr, cfg.LogLevel, cfg.LogFormat)
	transport := kolony.NewClient(cfg.KolonyBaseURL, cfg.RequestTimeout, cfg.UpstreamProxyURL).WithLogger(log)
	return transport, session.Static(cfg.AccessToken), true
}

func runChat(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	system := fs.String("system", "", "Optional system prompt")
	transport, tokens, ok := setup(fs, args, stderr)
	if !ok {
		return exitUsage
	}
	message := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if message == "" {
		fmt.Fprintln(stderr, "usage: kolony chat [flags] <message...>")
		return exitUsage
	}

	var turns []chat.Turn
	if *system != "" {
		turns = append(turns, chat.Turn{Role: chat.RoleSystem, Content: *system})
	}
	turns = append(turns, chat.Turn{Role: chat.RoleUser, Content: message})

	printed := 0
	_, err := chat.NewClient(transport, tokens).Stream(ctx, turns, func(tr chat.Transcript) {
		last, _ := tr.Last()
		fmt.Fprint(stdout, last.Content[printed:])
		printed = len(last.Content)
	})
	if printed > 0 {
		fmt.Fprintln(stdout)
	}
	return report(err, stderr)
}

func runCampaign(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("campaign", flag.ContinueOnError)
	var req campaign.Request
	fs.StringVar(&req.Prompt, "prompt", "", "Campaign brief (required)")
	fs.StringVar(&req.Location, "location", "", "Target location")
	fs.StringVar(&req.TargetAudience, "audience", "", "Target audience")
	fs.StringVar(&req.BrandImage, "brand-image", "", "Brand image URL or data URI")
	transport, tokens, ok := setup(fs, args, stderr)
	if !ok {
		return exitUsage
	}
	if strings.TrimSpace(req.Prompt) == "" {
		fmt.Fprintln(stderr, "usage: kolony campaign -prompt <brief> [flags]")
		return exitUsage
	}

	orch := campaign.NewOrchestrator(transport, tokens)
	r := orch.Start(context.Background(), req, func(t campaign.Thought) {
		fmt.Fprintln(stdout, t)
	})
	go func() {
		select {
		case <-ctx.Done():
			r.Cancel()
		case <-r.Done():
		}
	}()

	result, err := r.Wait()
	if err != nil {
		return report(err, stderr)
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return report(err, stderr)
	}
	fmt.Fprintln(stdout, string(out))
	return exitOK
}

// report prints err the way the web client surfaces it: a quiet notice for
// a cancellation, an error line for everything else.
func report(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return exitOK
	case apierrors.IsCancelled(err):
		fmt.Fprintln(stderr, "cancelled")
		return exitCancelled
	default:
		fmt.Fprintln(stderr, "error:", err)
		return exitError
	}
}
