package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tOgg1/sitesync/internal/config"
	"github.com/tOgg1/sitesync/internal/models"
)

const maxSuggestions = 5

// errNoCounterparty is returned when neither an argument nor a stored
// context names a counterparty.
var errNoCounterparty = errors.New("counterparty required (pass one or run 'sitesync use <counterparty>')")

// counterpartyQuery returns the explicit argument, or the stored context.
func counterpartyQuery(arg string, store *config.ContextStore) (string, error) {
	if query := strings.TrimSpace(arg); query != "" {
		return query, nil
	}
	current, err := store.Load()
	if err != nil {
		return "", err
	}
	if current.IsEmpty() {
		return "", errNoCounterparty
	}
	return current.CounterpartyID, nil
}

// findConversation resolves a counterparty id, local conversation id,
// persistent conversation id or name prefix against list.
func findConversation(list []models.Conversation, query string) (models.Conversation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.Conversation{}, errNoCounterparty
	}

	for _, c := range list {
		if c.Counterparty.ID == query || c.ID == query || (c.PersistentID != "" && c.PersistentID == query) {
			return c, nil
		}
	}

	matches := matchConversations(list, query)
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return models.Conversation{}, fmt.Errorf("counterparty '%s' is ambiguous; matches: %s (use a longer name or the id)", query, formatConversationMatches(matches))
	}
	if len(list) == 0 {
		return models.Conversation{}, fmt.Errorf("counterparty '%s' not found (no conversations available)", query)
	}

	example := fmt.Sprintf("Example input: '%s' or '%s'", list[0].Counterparty.Name, list[0].Counterparty.ID)
	return models.Conversation{}, fmt.Errorf("counterparty '%s' not found. %s", query, example)
}

func matchConversations(list []models.Conversation, query string) []models.Conversation {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil
	}

	var matches []models.Conversation
	for _, c := range list {
		if strings.HasPrefix(c.Counterparty.ID, query) {
			matches = append(matches, c)
			continue
		}
		name := strings.ToLower(c.Counterparty.Name)
		if strings.HasPrefix(name, normalized) || (len(normalized) >= 3 && strings.Contains(name, normalized)) {
			matches = append(matches, c)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		left := strings.ToLower(matches[i].Counterparty.Name)
		right := strings.ToLower(matches[j].Counterparty.Name)
		if left == right {
			return matches[i].Counterparty.ID < matches[j].Counterparty.ID
		}
		return left < right
	})
	return matches
}

func formatConversationMatches(matches []models.Conversation) string {
	parts := make([]string, 0, maxSuggestions)
	for i, c := range matches {
		if i == maxSuggestions {
			parts = append(parts, fmt.Sprintf("and %d more", len(matches)-maxSuggestions))
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", c.Counterparty.Name, c.Counterparty.ID))
	}
	return strings.Join(parts, ", ")
}
