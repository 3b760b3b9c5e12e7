package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/sitesync/internal/config"
	"github.com/tOgg1/sitesync/internal/models"
)

func resolveFixture() []models.Conversation {
	return []models.Conversation{
		{ID: "conv-42", PersistentID: "77", Counterparty: models.Counterparty{ID: "42", Name: "Dana Builder", Role: models.RoleDeveloper}},
		{ID: "conv-7", Counterparty: models.Counterparty{ID: "7", Name: "Dan Smith", Role: models.RoleClient}},
		{ID: "conv-8", Counterparty: models.Counterparty{ID: "8", Name: "Carol", Role: models.RoleClient}},
	}
}

func TestFindConversation(t *testing.T) {
	list := resolveFixture()

	tests := []struct {
		query string
		want  string
	}{
		{query: "42", want: "42"},
		{query: "conv-7", want: "7"},
		{query: "77", want: "42"},
		{query: "car", want: "8"},
		{query: "CAROL", want: "8"},
		{query: "smith", want: "7"},
		{query: "4", want: "42"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := findConversation(list, tt.query)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Counterparty.ID)
		})
	}
}

func TestFindConversationErrors(t *testing.T) {
	list := resolveFixture()

	_, err := findConversation(list, "dan")
	require.ErrorContains(t, err, "ambiguous")
	require.ErrorContains(t, err, "Dan Smith (7), Dana Builder (42)")

	_, err = findConversation(list, "zed")
	require.ErrorContains(t, err, "not found")
	require.ErrorContains(t, err, "Example input: 'Dana Builder' or '42'")

	_, err = findConversation(nil, "zed")
	require.ErrorContains(t, err, "no conversations available")

	_, err = findConversation(list, "  ")
	require.ErrorIs(t, err, errNoCounterparty)
}

func TestCounterpartyQueryFallsBackToContext(t *testing.T) {
	store := config.NewContextStore(filepath.Join(t.TempDir(), "context.yaml"))

	_, err := counterpartyQuery("", store)
	require.ErrorIs(t, err, errNoCounterparty)

	query, err := counterpartyQuery(" dana ", store)
	require.NoError(t, err)
	require.Equal(t, "dana", query)

	current := &config.Context{}
	current.Select("42", "Dana Builder")
	require.NoError(t, store.Save(current))

	query, err = counterpartyQuery("", store)
	require.NoError(t, err)
	require.Equal(t, "42", query)
}
