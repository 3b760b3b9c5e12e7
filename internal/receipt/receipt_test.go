package receipt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/sitesync/internal/models"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		msg  models.Message
		want Tick
	}{
		{
			name: "not own message",
			msg:  models.Message{SenderID: "42", Read: true},
			want: TickNone,
		},
		{
			name: "no flags is sent",
			msg:  models.Message{SenderID: "1"},
			want: TickSent,
		},
		{
			name: "delivered flag",
			msg:  models.Message{SenderID: "1", Delivered: true},
			want: TickDelivered,
		},
		{
			name: "read without delivered is read",
			msg:  models.Message{SenderID: "1", Read: true, Delivered: false},
			want: TickRead,
		},
		{
			name: "explicit status overrides flags",
			msg:  models.Message{SenderID: "1", Read: true, Status: models.StatusSent},
			want: TickSent,
		},
		{
			name: "status is case insensitive",
			msg:  models.Message{SenderID: "1", Status: "Delivered"},
			want: TickDelivered,
		},
		{
			name: "unknown status falls back to flags",
			msg:  models.Message{SenderID: "1", Status: "queued", Delivered: true},
			want: TickDelivered,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Render(tt.msg, "1"))
		})
	}
}

func TestRenderWithoutViewer(t *testing.T) {
	require.Equal(t, TickNone, Render(models.Message{SenderID: ""}, ""))
}

func TestGlyph(t *testing.T) {
	require.Equal(t, "", TickNone.Glyph())
	require.Equal(t, "✓", TickSent.Glyph())
	require.Equal(t, "✓✓", TickDelivered.Glyph())
	require.Equal(t, "✓✓", TickRead.Glyph())
	require.Equal(t, "read", TickRead.String())
}
