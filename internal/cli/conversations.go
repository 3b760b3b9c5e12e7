package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tOgg1/sitesync/internal/models"
	"github.com/tOgg1/sitesync/internal/presence"
)

var (
	conversationsOnline bool
	conversationsRole   string
)

func init() {
	rootCmd.AddCommand(conversationsCmd)

	conversationsCmd.Flags().BoolVar(&conversationsOnline, "online", false, "only show online counterparties")
	conversationsCmd.Flags().StringVar(&conversationsRole, "role", "", "filter by counterparty role (client, developer)")
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls", "list"},
	Short:   "List conversations with presence and unread counts",
	Long: `List every client and developer the operator can message, with
their presence, unread count and the latest message.

Counterparties without history are listed with "No messages yet".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var role models.Role
		if conversationsRole != "" {
			role = models.ParseRole(conversationsRole)
			if !role.IsCounterparty() {
				return fmt.Errorf("invalid --role %q (use client or developer)", conversationsRole)
			}
		}

		a, err := newApp(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.RefreshList(cmd.Context()); err != nil {
			return err
		}

		list := filterConversations(a.session.Conversations(), conversationsOnline, role)
		if IsJSONOutput() {
			return writeJSON(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversations.")
			return nil
		}
		return writeConversationTable(cmd.OutOrStdout(), list, time.Now())
	},
}

func filterConversations(list []models.Conversation, onlineOnly bool, role models.Role) []models.Conversation {
	out := make([]models.Conversation, 0, len(list))
	for _, c := range list {
		if onlineOnly && !c.Online {
			continue
		}
		if role != "" && c.Counterparty.Role != role {
			continue
		}
		out = append(out, c)
	}
	return out
}

func writeConversationTable(out io.Writer, list []models.Conversation, now time.Time) error {
	rows := make([][]string, 0, len(list))
	for _, c := range list {
		unread := ""
		if c.Unread > 0 {
			unread = strconv.Itoa(c.Unread)
		}
		when := ""
		if c.HasHistory() {
			when = humanize.RelTime(c.LastMessageAt, now, "ago", "from now")
		}
		rows = append(rows, []string{
			c.Counterparty.ID,
			c.Counterparty.Name,
			string(c.Counterparty.Role),
			presence.Describe(c.Online, c.LastSeen, now),
			unread,
			truncateCell(c.LastMessage, maxPreviewCell),
			when,
		})
	}
	return writeTable(out, []string{"ID", "NAME", "ROLE", "PRESENCE", "UNREAD", "LAST MESSAGE", "WHEN"}, rows)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatMessageTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	local := t.Local()
	if y, m, d := now.Local().Date(); local.Year() == y && local.Month() == m && local.Day() == d {
		return local.Format("15:04")
	}
	return local.Format("Jan 2 15:04")
}
