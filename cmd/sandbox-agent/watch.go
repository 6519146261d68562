package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sandboxagent/internal/agent/domain"
	"sandboxagent/internal/server/app"
)

const defaultServerURL = "http://localhost:8000"

// quietKinds are hidden by watch unless --all is given.
var quietKinds = []string{
	string(domain.KindThinking),
	string(domain.KindToolResult),
	string(domain.KindSystem),
	string(domain.KindUserPrompt),
}

type watchOptions struct {
	server string
	all    bool
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the active session's event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchStream(ctx, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", defaultServerURL, "Agent server URL")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Print every event the server forwards")
	return cmd
}

// watchStream prints SSE events until the server closes the stream.
func watchStream(ctx context.Context, out io.Writer, opts *watchOptions) error {
	printer, err := newEventPrinter(out, opts.all, isTerminal(out))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(opts.server, "/")+"/stream", nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", opts.server, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream: %s", readErrorBody(resp))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			fmt.Fprintln(out, yellow("skipping malformed event:"), err)
			continue
		}
		printer.Print(event)
	}
	if err := scanner.Err(); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func readErrorBody(resp *http.Response) string {
	var body apiError
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return resp.Status
	}
	if body.Details != "" {
		return fmt.Sprintf("%s (%s): %s", body.Error, resp.Status, body.Details)
	}
	return fmt.Sprintf("%s (%s)", body.Error, resp.Status)
}

// eventPrinter renders events as terminal lines.
type eventPrinter struct {
	out      io.Writer
	filter   *app.FilterPolicy
	renderer *glamour.TermRenderer
}

func newEventPrinter(out io.Writer, all, tty bool) (*eventPrinter, error) {
	p := &eventPrinter{out: out}
	if !all {
		filter, err := app.NewFilterPolicy(app.FilterConfig{SuppressKinds: quietKinds})
		if err != nil {
			return nil, err
		}
		p.filter = filter
	}
	if tty {
		width := 80
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = min(w-4, 120)
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
			glamour.WithEmoji(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		p.renderer = renderer
	}
	return p, nil
}

func (p *eventPrinter) Print(event domain.Event) {
	if p.filter != nil && !p.filter.Forward(event) {
		return
	}
	if line := p.format(event); line != "" {
		fmt.Fprintln(p.out, line)
	}
}

func (p *eventPrinter) format(event domain.Event) string {
	data := event.Data()
	switch event.Kind() {
	case domain.KindStarted:
		return fmt.Sprintf("%s model=%s workdir=%s", bold(blue("▶ started")), value(data, "model"), value(data, "workdir"))
	case domain.KindText:
		return p.markdown(data.String("text"))
	case domain.KindThinking:
		return gray("… " + data.String("thinking"))
	case domain.KindToolUse:
		return fmt.Sprintf("%s %s %s", cyan("⚙"), bold(value(data, "name")), gray(compact(data, "input")))
	case domain.KindToolResult:
		if b, _ := data.Get("is_error"); b == true {
			return red("✗ result ") + gray(truncate(value(data, "content"), 200))
		}
		return gray("← " + truncate(value(data, "content"), 200))
	case domain.KindToolStart:
		return fmt.Sprintf("%s %s", cyan("→"), value(data, "tool"))
	case domain.KindToolEnd:
		return fmt.Sprintf("%s %s %sms", green("✓"), value(data, "tool"), value(data, "duration_ms"))
	case domain.KindToolError:
		return fmt.Sprintf("%s %s %sms", red("✗"), value(data, "tool"), value(data, "duration_ms"))
	case domain.KindFileRead:
		return gray("read  " + value(data, "path"))
	case domain.KindFileWrite:
		return fmt.Sprintf("%s %s (%s bytes)", green("write"), value(data, "path"), value(data, "size"))
	case domain.KindResult:
		return fmt.Sprintf("%s turns=%s cost=$%s duration=%sms", bold("■ result"), value(data, "num_turns"), value(data, "total_cost_usd"), value(data, "duration_ms"))
	case domain.KindSystem:
		return gray("system " + value(data, "subtype"))
	case domain.KindUserPrompt:
		return gray("prompt " + value(data, "prompt"))
	case domain.KindError:
		return fmt.Sprintf("%s %s: %s", bold(red("error")), value(data, "type"), value(data, "message"))
	case domain.KindCompleted:
		return fmt.Sprintf("%s in %sms", bold(green("✔ completed")), value(data, "total_duration_ms"))
	default:
		return gray(string(event.Kind()))
	}
}

func (p *eventPrinter) markdown(text string) string {
	if p.renderer == nil || text == "" {
		return text
	}
	rendered, err := p.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

func value(data domain.Data, key string) string {
	v, ok := data.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func compact(data domain.Data, key string) string {
	v, ok := data.Get(key)
	if !ok {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return truncate(string(raw), 160)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
