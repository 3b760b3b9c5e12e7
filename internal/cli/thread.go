package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/sitesync/internal/chatsync"
	"github.com/tOgg1/sitesync/internal/models"
	"github.com/tOgg1/sitesync/internal/presence"
	"github.com/tOgg1/sitesync/internal/receipt"
)

var threadLimit int

func init() {
	rootCmd.AddCommand(threadCmd)

	threadCmd.Flags().IntVarP(&threadLimit, "limit", "n", 50, "show at most this many of the newest messages (0 for all)")
}

var threadCmd = &cobra.Command{
	Use:   "thread [counterparty]",
	Short: "Show the message thread with a counterparty",
	Long: `Show the message thread with a counterparty and mark it read.

The counterparty may be given as an id, a conversation id or a name prefix.
Without an argument the counterparty chosen with 'sitesync use' is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		target, err := openConversation(cmd, a, firstArg(args))
		if err != nil {
			return err
		}
		a.rememberSelection()

		thread := a.session.Thread()
		if threadLimit > 0 && len(thread) > threadLimit {
			thread = thread[len(thread)-threadLimit:]
		}
		if IsJSONOutput() {
			return writeJSON(cmd.OutOrStdout(), thread)
		}

		out := cmd.OutOrStdout()
		now := time.Now()
		fmt.Fprintf(out, "%s (%s) - %s\n", target.Counterparty.Name, target.Counterparty.Role,
			presence.Describe(target.Online, target.LastSeen, now))
		if len(thread) == 0 {
			fmt.Fprintln(out, models.NoMessagesPreview)
			return nil
		}
		writeThread(out, thread, a.session.Operator().ID, target.Counterparty.Name, now)
		return nil
	},
}

// openConversation refreshes the list, resolves query and selects it. A
// thread that fails to load is reported but leaves the selection in place.
func openConversation(cmd *cobra.Command, a *app, arg string) (models.Conversation, error) {
	ctx := cmd.Context()
	query, err := counterpartyQuery(arg, a.contexts)
	if err != nil {
		return models.Conversation{}, err
	}
	if err := a.session.RefreshList(ctx); err != nil {
		return models.Conversation{}, err
	}
	target, err := findConversation(a.session.Conversations(), query)
	if err != nil {
		return models.Conversation{}, err
	}

	if err := a.session.Select(ctx, target.ID); err != nil {
		if errors.Is(err, chatsync.ErrConversationNotFound) {
			return models.Conversation{}, err
		}
		logger.Warn().Err(err).Str("counterparty", target.Counterparty.ID).Msg("thread load failed")
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	if selected, ok := a.session.Selected(); ok {
		target = selected
	}
	return target, nil
}

func writeThread(out io.Writer, thread []models.Message, viewerID, counterpartyName string, now time.Time) {
	for _, msg := range thread {
		sender := counterpartyName
		if msg.SenderID == viewerID {
			sender = "you"
		}

		status := receipt.Render(msg, viewerID).Glyph()
		switch {
		case msg.Failed():
			status = "failed: " + msg.SendError
		case msg.Delivery == models.DeliveryPending:
			status = "sending"
		}

		line := fmt.Sprintf("[%s] %s: %s", formatMessageTime(msg.CreatedAt, now), sender, msg.Body)
		if status != "" {
			line += "  " + status
		}
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
