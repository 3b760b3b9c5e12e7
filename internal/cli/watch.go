package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/sitesync/internal/events"
	"github.com/tOgg1/sitesync/internal/models"
)

const watchBuffer = 256

var (
	watchSelect string
	watchTypes  []string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchSelect, "select", "", "select a counterparty so thread and typing events flow")
	watchCmd.Flags().StringSliceVar(&watchTypes, "types", nil, "only stream these event types (e.g. list.updated,typing.changed)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sync loops and stream events as JSONL",
	Long: `Run the list, thread and typing poll loops and write every session
event to stdout as one JSON object per line, until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := parseEventTypes(watchTypes)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		source, unsubscribe, err := a.publisher.Channel("watch", filter, watchBuffer)
		if err != nil {
			return err
		}
		defer unsubscribe()

		if err := a.session.Start(ctx); err != nil {
			return err
		}
		if watchSelect != "" {
			if _, err := openConversation(cmd, a, watchSelect); err != nil {
				return err
			}
		}

		logger.Debug().Strs("types", watchTypes).Msg("streaming events")
		return NewEventStreamer(source, cmd.OutOrStdout()).Stream(ctx)
	},
}

func parseEventTypes(raw []string) (events.Filter, error) {
	known := map[models.EventType]bool{
		models.EventTypeListUpdated:     true,
		models.EventTypeThreadUpdated:   true,
		models.EventTypePresenceChanged: true,
		models.EventTypeTypingChanged:   true,
		models.EventTypeMessageSent:     true,
		models.EventTypeMessageFailed:   true,
		models.EventTypeReauthRequired:  true,
		models.EventTypeAutoScroll:      true,
		models.EventTypeSyncError:       true,
	}

	var filter events.Filter
	for _, value := range raw {
		typ := models.EventType(strings.TrimSpace(value))
		if typ == "" {
			continue
		}
		if !known[typ] {
			return events.Filter{}, fmt.Errorf("unknown event type %q", typ)
		}
		filter.EventTypes = append(filter.EventTypes, typ)
	}
	return filter, nil
}

// EventStreamer writes session events to an output writer in JSONL format.
type EventStreamer struct {
	source <-chan *models.Event
	out    io.Writer
}

// NewEventStreamer creates a streamer reading from source.
func NewEventStreamer(source <-chan *models.Event, out io.Writer) *EventStreamer {
	return &EventStreamer{source: source, out: out}
}

// Stream writes events until the context is cancelled or the source is
// closed. Returns nil on graceful shutdown.
func (s *EventStreamer) Stream(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-s.source:
			if !ok {
				return nil
			}
			if err := s.writeEvent(event); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
		}
	}
}

func (s *EventStreamer) writeEvent(event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = s.out.Write(data)
	return err
}
