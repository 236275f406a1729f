package merge

import (
	"fmt"
	"strings"

	"github.com/chirino/conversation-cache/internal/model"
	"github.com/mitchellh/mapstructure"
)

// aliases lists the source field names accepted for each canonical camelCase
// name used by model.Conversation's mapstructure tags, highest priority first.
var aliases = map[string][]string{
	"pageId":           {"fb_page_id", "page_id"},
	"clientId":         {"fb_client_id", "client_id"},
	"unreadCount":      {"unread_message_amount", "unread_count"},
	"lastMessageTime":  {"last_message_time"},
	"lastMessageText":  {"last_message", "last_message_text"},
	"lastMessageType":  {"last_message_type"},
	"lastMessageId":    {"last_message_id"},
	"labelIds":         {"label_id", "label_ids"},
	"postIds":          {"list_fb_post_id", "post_ids"},
	"clientName":       {"client_name"},
	"clientAliasName":  {"client_alias_name"},
	"clientPhone":      {"client_phone"},
	"clientEmail":      {"client_email"},
	"clientBio":        {"client_bio"},
	"conversationType": {"conversation_type"},
	"platformType":     {"platform_type"},
	"staffId":          {"fb_staff_id", "staff_id"},
	"ownerId":          {"user_id"},
	"isSpam":           {"is_spam_fb", "is_spam"},
	"hasInbox":         {"is_have_fb_inbox"},
	"hasPost":          {"is_have_fb_post"},
	"isGroup":          {"is_group"},
	"createdAt":        {"create_at", "created_at"},
}

var isAlias = func() map[string]bool {
	m := map[string]bool{}
	for _, names := range aliases {
		for _, n := range names {
			m[n] = true
		}
	}
	return m
}()

// Normalize decodes a raw record into a Conversation. A canonical field name
// takes precedence over its aliases; among aliases the first non-null one in
// priority order wins. Empty identity fields are returned as-is; callers
// decide whether the record is usable.
func Normalize(raw model.RawRecord) (model.Conversation, error) {
	canonical := make(map[string]any, len(raw))
	for k, v := range raw {
		if v == nil || isAlias[k] {
			continue
		}
		canonical[k] = v
	}
	for name, names := range aliases {
		if _, taken := raw[name]; taken {
			continue
		}
		for _, alias := range names {
			if v := raw[alias]; v != nil {
				canonical[name] = v
				break
			}
		}
	}

	var c model.Conversation
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &c,
	})
	if err != nil {
		return c, err
	}
	if err := dec.Decode(canonical); err != nil {
		return c, fmt.Errorf("decode record: %w", err)
	}
	c.PageID = strings.TrimSpace(c.PageID)
	c.ClientID = strings.TrimSpace(c.ClientID)
	if c.PageID != "" && c.ClientID != "" {
		c.ID = model.ConversationID(c.PageID, c.ClientID)
	}
	return c, nil
}
