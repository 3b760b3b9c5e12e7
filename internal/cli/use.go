package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var useClear bool

func init() {
	rootCmd.AddCommand(useCmd)

	useCmd.Flags().BoolVar(&useClear, "clear", false, "forget the current counterparty")
}

var useCmd = &cobra.Command{
	Use:   "use [counterparty]",
	Short: "Set or show the current counterparty",
	Long: `Set the counterparty that 'thread' and 'send' use when none is given.

Without arguments the current counterparty is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if useClear {
			if err := newContextStore().Clear(); err != nil {
				return err
			}
			fmt.Fprintln(out, "Context cleared.")
			return nil
		}

		if len(args) == 0 {
			current, err := newContextStore().Load()
			if err != nil {
				return err
			}
			if IsJSONOutput() {
				return writeJSON(out, current)
			}
			fmt.Fprintf(out, "Current counterparty: %s\n", current)
			return nil
		}

		a, err := newApp(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.RefreshList(cmd.Context()); err != nil {
			return err
		}
		target, err := findConversation(a.session.Conversations(), args[0])
		if err != nil {
			return err
		}

		current, err := a.contexts.Load()
		if err != nil {
			return err
		}
		current.Select(target.Counterparty.ID, target.Counterparty.Name)
		current.AdoptConversation(target.PersistentID)
		if err := a.contexts.Save(current); err != nil {
			return err
		}

		if IsJSONOutput() {
			return writeJSON(out, current)
		}
		fmt.Fprintf(out, "Now using %s\n", current)
		PrintNextSteps(out, HintContext{Action: "use", CounterpartyID: target.Counterparty.ID})
		return nil
	},
}
