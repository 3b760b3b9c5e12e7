package cli

import (
	"fmt"
	"io"
)

// HintContext provides context for generating relevant next steps.
type HintContext struct {
	// Action is the command that was executed (e.g. "send", "use").
	Action string

	// CounterpartyID is the counterparty involved, if any.
	CounterpartyID string
}

// PrintNextSteps prints contextual next steps after a successful command.
// Does nothing if JSON output is enabled.
func PrintNextSteps(out io.Writer, ctx HintContext) {
	if IsJSONOutput() {
		return
	}

	hints := generateHints(ctx)
	if len(hints) == 0 {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	for _, hint := range hints {
		fmt.Fprintf(out, "  %s\n", hint)
	}
}

func generateHints(ctx HintContext) []string {
	switch ctx.Action {
	case "send":
		return []string{
			fmt.Sprintf("sitesync thread %s   # view the conversation", ctx.CounterpartyID),
			"sitesync watch --types message.sent,message.failed   # follow deliveries",
		}
	case "use":
		return []string{
			"sitesync thread              # view the conversation",
			"sitesync send \"<message>\"    # reply",
		}
	default:
		return nil
	}
}

// hintedError carries a remedy printed under the error.
type hintedError struct {
	err  error
	hint string
}

func (e *hintedError) Error() string {
	return e.err.Error()
}

func (e *hintedError) Unwrap() error {
	return e.err
}

// Hint returns the remedy for the error.
func (e *hintedError) Hint() string {
	return e.hint
}
