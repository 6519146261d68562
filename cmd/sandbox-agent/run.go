package main

import (
	"bytes"
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

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type runOptions struct {
	watchOptions
	workdir string
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Start a generation on the server and follow it",
		Long:  "Start a generation on the server and follow it. Without arguments the prompt is read interactively.",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				if !term.IsTerminal(int(os.Stdin.Fd())) {
					return errors.New("a prompt is required")
				}
				var err error
				if prompt, err = askPrompt(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			sessionID, err := startGeneration(ctx, opts.server, prompt, opts.workdir)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s\n", bold("session"), sessionID)
			return watchStream(ctx, out, &opts.watchOptions)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", defaultServerURL, "Agent server URL")
	cmd.Flags().StringVar(&opts.workdir, "workdir", "", "Project directory on the server")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Print every event the server forwards")
	return cmd
}

func askPrompt() (string, error) {
	input := promptui.Prompt{
		Label: "What should the agent build",
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("prompt must not be empty")
			}
			return nil
		},
	}
	prompt, err := input.Run()
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	return strings.TrimSpace(prompt), nil
}

type generateResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

func startGeneration(ctx context.Context, server, prompt, workdir string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt, "workdir": workdir})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", server, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate: %s", readErrorBody(resp))
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return out.SessionID, nil
}
