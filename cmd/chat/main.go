// Command chat is a terminal client for the admissions relay.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/joho/godotenv"
	"github.com/nemo-admissions/nemo-relay/internal/agentclient"
	"github.com/nemo-admissions/nemo-relay/internal/chat"
	"github.com/nemo-admissions/nemo-relay/internal/leads"
	"github.com/nemo-admissions/nemo-relay/internal/models"
)

func main() {
	_ = godotenv.Load()

	endpoint := flag.String("endpoint", os.Getenv("AGENT_PROXY_ENDPOINT"), "relay URL, e.g. http://localhost:8080/invocations")
	phone := flag.String("phone", "", "phone number used to correlate the conversation")
	leadPath := flag.String("lead", "", "JSON file with the inquiry form; submitted and sent as the first message")
	formEndpoint := flag.String("form-endpoint", os.Getenv("FORM_SUBMISSION_ENDPOINT"), "form submission API base URL")
	width := flag.Int("width", 100, "markdown word wrap width")
	debug := flag.Bool("debug", false, "log to stderr at debug level")
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(*width),
	)
	if err != nil {
		log.Fatal(fmt.Errorf("error creating markdown renderer: %w", err))
	}
	v := newView(os.Stdout, renderer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := []chat.Option{
		chat.WithPhoneNumber(*phone),
		chat.WithLogger(logger),
		chat.WithOnChange(v.update),
	}
	if *leadPath != "" {
		lead, err := loadLead(ctx, *leadPath, *formEndpoint, logger)
		if err != nil {
			log.Fatal(err)
		}
		opts = append(opts, chat.WithLead(lead))
	}

	client := agentclient.New(*endpoint, logger)
	session := chat.NewSession(client, opts...)

	if err := session.Start(ctx); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Type a question, /regen to regenerate the last answer, /export <file> to save the conversation as HTML, /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/regen":
			err = regenerateLast(ctx, session)
		case strings.HasPrefix(line, "/export "):
			snap := session.Snapshot()
			err = exportTranscript(strings.TrimSpace(strings.TrimPrefix(line, "/export ")), snap.SessionID, snap.Messages)
		default:
			err = session.Send(ctx, line)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func regenerateLast(ctx context.Context, s *chat.Session) error {
	for _, m := range slices.Backward(s.Snapshot().Messages) {
		if m.Type == models.MessageTypeAI {
			return s.Regenerate(ctx, m.ID)
		}
	}
	return chat.ErrMessageNotFound
}

func loadLead(ctx context.Context, path, formEndpoint string, logger *slog.Logger) (leads.Lead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return leads.Lead{}, fmt.Errorf("error reading lead file: %w", err)
	}
	var lead leads.Lead
	if err := json.Unmarshal(data, &lead); err != nil {
		return leads.Lead{}, fmt.Errorf("error decoding lead file: %w", err)
	}
	if err := lead.Validate(); err != nil {
		return leads.Lead{}, err
	}

	if formEndpoint != "" {
		res := leads.NewClient(formEndpoint, nil, logger).Submit(ctx, lead)
		if !res.Success {
			return leads.Lead{}, fmt.Errorf("error submitting inquiry form: %s", res.Message)
		}
	}
	return lead, nil
}
