package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/sitesync/internal/chatsync"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send [counterparty] <message>",
	Short: "Send a message to a counterparty",
	Long: `Send a message to a counterparty.

With a single argument the message goes to the counterparty chosen with
'sitesync use'. The first message to a counterparty opens the conversation.`,
	Example: `  sitesync send alice "The plans are ready"
  sitesync use alice && sitesync send "Site visit moved to Friday"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		counterparty, body := "", args[0]
		if len(args) == 2 {
			counterparty, body = args[0], args[1]
		}
		if strings.TrimSpace(body) == "" {
			return chatsync.ErrEmptyMessage
		}

		a, err := newApp(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		target, err := openConversation(cmd, a, counterparty)
		if err != nil {
			return err
		}

		msg, err := a.session.Send(cmd.Context(), body)
		if errors.Is(err, chatsync.ErrReauthRequired) {
			return &hintedError{err: err, hint: "refresh api.token (SITESYNC_API_TOKEN) and try again"}
		}
		if err != nil {
			return err
		}
		a.rememberSelection()

		if IsJSONOutput() {
			return writeJSON(cmd.OutOrStdout(), msg)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s (message %s)\n", target.Counterparty.Name, msg.ID)
		PrintNextSteps(cmd.OutOrStdout(), HintContext{
			Action:         "send",
			CounterpartyID: target.Counterparty.ID,
		})
		return nil
	},
}
