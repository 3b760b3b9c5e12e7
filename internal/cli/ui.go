package cli

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/sitesync/internal/events"
	"github.com/tOgg1/sitesync/internal/logging"
	"github.com/tOgg1/sitesync/internal/tui"
)

func init() {
	rootCmd.AddCommand(uiCmd)
}

var uiCmd = &cobra.Command{
	Use:   "ui [counterparty]",
	Short: "Open the conversation viewer",
	Long: `Open the terminal conversation viewer: the conversation list with
presence and unread counts, the selected thread with read receipts and
typing, and a composer.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUI(cmd.Context(), firstArg(args))
	},
}

func runUI(ctx context.Context, counterparty string) error {
	if !hasTTY() {
		return &hintedError{
			err:  errNoTTY,
			hint: "use 'sitesync conversations', 'thread' and 'send' instead",
		}
	}

	cfg := GetConfig()
	if cfg != nil && cfg.Logging.File == "" {
		// Console logs would draw over the viewer.
		logging.Init(logging.Config{Level: "disabled", Format: cfg.Logging.Format})
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	source, unsubscribe, err := a.publisher.Channel("ui", events.Filter{}, 256)
	if err != nil {
		return err
	}
	defer unsubscribe()

	if err := a.session.Start(ctx); err != nil {
		return err
	}

	opts := tui.Options{Events: source}
	if counterparty != "" {
		if err := a.session.RefreshList(ctx); err != nil {
			return err
		}
		target, err := findConversation(a.session.Conversations(), counterparty)
		if err != nil {
			return err
		}
		opts.Select = target.ID
	}

	err = tui.Run(ctx, a.session, opts)
	a.rememberSelection()
	return err
}

var errNoTTY = errors.New("the viewer requires an interactive terminal")

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
