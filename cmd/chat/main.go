package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tabletalk-web/internal/chatclient"
	"tabletalk-web/internal/cliconfig"
	"tabletalk-web/internal/models"
	"tabletalk-web/internal/tui"
)

var message string

var rootCmd = &cobra.Command{
	Use:   "tabletalk",
	Short: "Chat with the TableTalk dining assistant from the terminal",
	Long: `tabletalk talks to a running TableTalk web server over its chat route.

Settings come from flags, TABLETALK_* environment variables, or
<config dir>/tabletalk/config.yaml (keys: server, storage, pretty).

Examples:
  tabletalk                                  # interactive chat
  tabletalk --pretty                         # render plan/tool/final events
  tabletalk -m "vegan ramen under $20"       # one message, print the stream
  echo "sushi for four" | tabletalk          # message from stdin
  tabletalk --storage none                   # use the shared demo session

Keyboard shortcuts:
  Enter   - Send message
  Esc     - Stop the current response
  Ctrl+C  - Quit`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	godotenv.Load()

	rootCmd.Flags().String("server", cliconfig.DefaultServer, "TableTalk web server URL")
	rootCmd.Flags().String("storage", "", `Session file (default <config dir>/tabletalk/state.json, "none" to disable)`)
	rootCmd.Flags().Bool("pretty", false, "Render stream events instead of raw lines")
	rootCmd.Flags().StringVarP(&message, "message", "m", "", "Send one message and print the response")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	configDir := cliconfig.DefaultDir()
	cfg, err := cliconfig.Load(cmd.Flags(), configDir)
	if err != nil {
		return err
	}

	sessionID, err := chatclient.SessionID(openStorage(cfg.Storage, configDir))
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	client := chatclient.New(cfg.Server)

	text := message
	if text == "" && !term.IsTerminal(int(os.Stdin.Fd())) {
		piped, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(piped)
	}

	if text != "" {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return sendOnce(ctx, client, sessionID, text, cfg.Pretty)
	}

	p := tea.NewProgram(tui.New(client, sessionID, cfg.Pretty), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func sendOnce(ctx context.Context, client *chatclient.Client, sessionID, text string, pretty bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("message is empty")
	}

	stream, err := client.StreamChat(ctx, models.ChatPayload{SessionID: sessionID, Message: text})
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Next() {
		line := stream.Line()
		if pretty {
			line = chatclient.Pretty(line)
		}
		fmt.Println(line)
	}
	return stream.Err()
}

// openStorage returns nil, like a browser without localStorage, when storage
// is disabled or there is nowhere to keep it.
func openStorage(path, configDir string) chatclient.Storage {
	switch {
	case path == cliconfig.StorageDisabled:
		return nil
	case path != "":
		return chatclient.NewFileStorage(path)
	case configDir != "":
		return chatclient.NewFileStorage(filepath.Join(configDir, "state.json"))
	default:
		return nil
	}
}
