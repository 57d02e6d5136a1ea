package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/chat-runtime/async"
	"github.com/wippyai/chat-runtime/bridge"
	"github.com/wippyai/chat-runtime/chat"
	"github.com/wippyai/chat-runtime/chat/chattest"
	"github.com/wippyai/chat-runtime/config"
	"github.com/wippyai/chat-runtime/quic"
	"github.com/wippyai/chat-runtime/registration"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file (optional)")
		number      = flag.String("number", "+18005550123", "Phone number to verify")
		transport   = flag.String("transport", "sms", "Verification transport (sms or voice)")
		languages   = flag.String("languages", "en-US", "Accept-language tags, comma-separated")
		code        = flag.String("code", "123456", "Verification code to submit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	wireLoggers(logger)

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *number, *transport, *languages, *code); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run drives one scripted verification flow against the in-process fake
// server, printing each stage.
func run(cfg *config.Config, number, transport, languages, code string) error {
	ctx := context.Background()

	fmt.Printf("Environment: %s\n", cfg.Environment)
	fmt.Printf("Chat endpoint: %s\n", cfg.Endpoints.ChatURL)
	fmt.Printf("QUIC target: %s\n", cfg.Endpoints.QuicTarget)

	srv := chattest.NewServer()
	host, err := bridge.NewHost(bridge.Config{Transports: srv, Workers: cfg.Workers})
	if err != nil {
		return err
	}
	defer host.Close()

	conn, err := host.ConnectChat(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	remote, err := srv.NextRemote(ctx)
	if err != nil {
		return err
	}
	stop := answerRegistration(remote)
	defer stop()

	fmt.Printf("\nCreating verification session for %s...\n", number)
	future, err := host.CreateRegistrationSession(ctx, conn, number, "", "", "", "")
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	flow, err := host.AwaitRegistration(ctx, future)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	printState(host, flow)

	fmt.Printf("\nRequesting a %s verification code...\n", transport)
	future, err = host.RegistrationRequestCode(ctx, flow, transport, cfg.UserAgent, languages)
	if err != nil {
		return fmt.Errorf("request code: %w", err)
	}
	if _, err := host.AwaitSession(ctx, future); err != nil {
		return fmt.Errorf("request code: %w", err)
	}
	printState(host, flow)

	fmt.Printf("\nSubmitting code %s...\n", code)
	future, err = host.RegistrationSubmitCode(ctx, flow, code)
	if err != nil {
		return fmt.Errorf("submit code: %w", err)
	}
	if _, err := host.AwaitSession(ctx, future); err != nil {
		return fmt.Errorf("submit code: %w", err)
	}
	printState(host, flow)

	// One server-pushed message, acked back over the same connection.
	fmt.Printf("\nWaiting for a server message...\n")
	if _, err := remote.SendMessage([]byte("welcome to the demo"), uint64(time.Now().UnixMilli())); err != nil {
		return err
	}
	doc, err := host.NextEvent(ctx, conn)
	if err != nil {
		return fmt.Errorf("next event: %w", err)
	}
	var ev struct {
		Envelope []byte `json:"envelope"`
		Ack      uint64 `json:"ack"`
	}
	if err := json.Unmarshal(doc, &ev); err != nil {
		return err
	}
	fmt.Printf("Message: %s\n", ev.Envelope)
	if err := host.AckServerMessage(ctx, ev.Ack); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	fmt.Printf("Acked.\n")

	return nil
}

func printState(host *bridge.Host, flow uint64) {
	doc, err := host.RegistrationState(flow)
	if err != nil {
		fmt.Printf("  state unavailable: %v\n", err)
		return
	}
	fmt.Printf("  %s\n", doc)
}

// answerRegistration scripts the fake server: every verification
// request is answered the way the real service would on the happy path.
// The returned stop function ends the script.
func answerRegistration(remote *chattest.Remote) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			req, id, err := remote.NextIncomingRequest(ctx)
			if err != nil {
				return
			}
			remote.SendResponse(id, 200, "OK",
				[]string{"content-type: application/json"},
				[]byte(sessionDoc(req)))
		}
	}()
	return cancel
}

func sessionDoc(req *chat.Request) string {
	if req.Method == "PUT" && strings.HasSuffix(req.Path, "/code") {
		return `{"id":"demo-session","allowedToRequestCode":false,"verified":true,"requestedInformation":[]}`
	}
	return `{"id":"demo-session","allowedToRequestCode":true,"verified":false,"requestedInformation":[]}`
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func wireLoggers(l *zap.Logger) {
	async.SetLogger(l.Named("async"))
	chat.SetLogger(l.Named("chat"))
	registration.SetLogger(l.Named("registration"))
	quic.SetLogger(l.Named("quic"))
	bridge.SetLogger(l.Named("bridge"))
}
