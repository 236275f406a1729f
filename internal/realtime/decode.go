package realtime

import (
	"strings"

	"github.com/chirino/conversation-cache/internal/model"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	"github.com/tidwall/gjson"
)

// Candidate paths per field, first match wins. Producers use camelCase,
// snake_case or a nested message object.
var (
	pageIDPaths      = []string{"pageId", "page_id", "fb_page_id"}
	clientIDPaths    = []string{"clientId", "client_id", "fb_client_id"}
	messageTextPaths = []string{"messageText", "message_text", "message.text", "last_message"}
	messageTypePaths = []string{"messageType", "message_type", "message.type", "last_message_type"}
	timePaths        = []string{"lastMessageTime", "last_message_time", "message.time", "timestamp"}
	messageIDPaths   = []string{"messageId", "message_id", "message.id"}
)

func first(doc gjson.Result, paths []string) gjson.Result {
	for _, p := range paths {
		if r := doc.Get(p); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

// DecodeEvent parses a realtime message payload. Payloads that are not JSON
// objects or lack page/client ids return a *registrystore.ValidationError.
func DecodeEvent(payload []byte) (model.MessageEvent, error) {
	if !gjson.ValidBytes(payload) {
		return model.MessageEvent{}, &registrystore.ValidationError{Field: "payload", Message: "invalid JSON"}
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsObject() {
		return model.MessageEvent{}, &registrystore.ValidationError{Field: "payload", Message: "must be a JSON object"}
	}

	ev := model.MessageEvent{
		PageID:          strings.TrimSpace(first(doc, pageIDPaths).String()),
		ClientID:        strings.TrimSpace(first(doc, clientIDPaths).String()),
		MessageText:     first(doc, messageTextPaths).String(),
		MessageType:     first(doc, messageTypePaths).String(),
		LastMessageTime: first(doc, timePaths).Int(),
		MessageID:       first(doc, messageIDPaths).String(),
	}
	if ev.PageID == "" {
		return ev, &registrystore.ValidationError{Field: "pageId", Message: "is required"}
	}
	if ev.ClientID == "" {
		return ev, &registrystore.ValidationError{Field: "clientId", Message: "is required"}
	}
	return ev, nil
}
