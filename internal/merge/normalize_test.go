package merge_test

import (
	"encoding/json"
	"testing"

	"github.com/chirino/conversation-cache/internal/merge"
	"github.com/chirino/conversation-cache/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSourceAliases(t *testing.T) {
	c, err := merge.Normalize(model.RawRecord{
		"fb_page_id":            "p1",
		"fb_client_id":          "c1",
		"unread_message_amount": "3",
		"last_message_time":     json.Number("1700000000123"),
		"last_message":          "hello",
		"last_message_type":     "client",
		"label_id":              []any{"a", "b"},
		"list_fb_post_id":       []any{"post"},
		"is_spam_fb":            1,
		"fb_staff_id":           "s1",
		"user_id":               "u1",
		"is_have_fb_inbox":      true,
		"client_bio":            "bio",
		"platform_type":         "fb",
		"some_unknown_field":    "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "p1_c1", c.ID)
	assert.Equal(t, 3, c.UnreadCount)
	assert.Equal(t, int64(1700000000123), *c.LastMessageTime)
	assert.Equal(t, "hello", *c.LastMessageText)
	assert.Equal(t, "client", *c.LastMessageType)
	assert.Equal(t, []string{"a", "b"}, c.LabelIDs)
	assert.Equal(t, []string{"post"}, c.PostIDs)
	assert.True(t, *c.IsSpam)
	assert.Equal(t, "s1", *c.StaffID)
	assert.Equal(t, "u1", *c.OwnerID)
	assert.True(t, c.HasInbox)
	assert.Equal(t, "bio", *c.ClientBio)
	assert.Equal(t, "fb", *c.PlatformType)
	assert.Nil(t, c.ClientName)
}

func TestNormalizeCanonicalNameWins(t *testing.T) {
	c, err := merge.Normalize(model.RawRecord{"pageId": "canon", "page_id": "alias", "clientId": "c"})
	require.NoError(t, err)
	assert.Equal(t, "canon_c", c.ID)
}

func TestNormalizeMissingIdentityLeavesIDEmpty(t *testing.T) {
	c, err := merge.Normalize(model.RawRecord{"pageId": "p", "clientId": "  "})
	require.NoError(t, err)
	assert.Empty(t, c.ID)
}

func TestNormalizeNullsAreAbsent(t *testing.T) {
	c, err := merge.Normalize(model.RawRecord{"pageId": "p", "clientId": "c", "lastMessageTime": nil})
	require.NoError(t, err)
	assert.Nil(t, c.LastMessageTime)
}

func TestNormalizeAliasPriorityIsFixed(t *testing.T) {
	for range 50 {
		c, err := merge.Normalize(model.RawRecord{
			"page_id":    "secondary",
			"fb_page_id": "primary",
			"client_id":  "c",
			"created_at": float64(2),
			"create_at":  float64(1),
			"staff_id":   "s2",
		})
		require.NoError(t, err)
		assert.Equal(t, "primary_c", c.ID)
		assert.Equal(t, int64(1), *c.CreatedAt)
		assert.Equal(t, "s2", *c.StaffID)
	}

	c, err := merge.Normalize(model.RawRecord{"fb_page_id": nil, "page_id": "p", "client_id": "c"})
	require.NoError(t, err)
	assert.Equal(t, "p_c", c.ID)
}
