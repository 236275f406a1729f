package model

import "strings"

// IDSeparator joins the page and client halves of a conversation id.
const IDSeparator = "_"

// MessageTypeClient marks a message sent by the external client (as opposed to staff).
const MessageTypeClient = "client"

// WatermarkKey is the meta row holding the snapshot sync watermark.
const WatermarkKey = "last_update"

// ConversationID builds the composite id for a page/client pair.
func ConversationID(pageID, clientID string) string {
	return pageID + IDSeparator + clientID
}

// IsClientMessage reports whether a message type tag denotes a client-originated message.
func IsClientMessage(messageType string) bool {
	return strings.EqualFold(messageType, MessageTypeClient)
}

// Conversation is one cached conversation thread between a page and an external client.
type Conversation struct {
	ID       string `json:"id"       gorm:"primaryKey"           bson:"_id"      mapstructure:"-"`
	PageID   string `json:"pageId"   gorm:"not null;index"       bson:"pageId"   mapstructure:"pageId"`
	ClientID string `json:"clientId" gorm:"not null"             bson:"clientId" mapstructure:"clientId"`

	UnreadCount     int     `json:"unreadCount"               gorm:"not null"           bson:"unreadCount"               mapstructure:"unreadCount"`
	LastMessageTime *int64  `json:"lastMessageTime,omitempty" gorm:"index"              bson:"lastMessageTime,omitempty" mapstructure:"lastMessageTime"`
	LastMessageText *string `json:"lastMessageText,omitempty"                           bson:"lastMessageText,omitempty" mapstructure:"lastMessageText"`
	LastMessageType *string `json:"lastMessageType,omitempty"                           bson:"lastMessageType,omitempty" mapstructure:"lastMessageType"`
	LastMessageID   *string `json:"lastMessageId,omitempty"                             bson:"lastMessageId,omitempty"   mapstructure:"lastMessageId"`

	LabelIDs []string `json:"labelIds,omitempty" gorm:"serializer:json;type:text" bson:"labelIds,omitempty" mapstructure:"labelIds"`
	PostIDs  []string `json:"postIds,omitempty"  gorm:"serializer:json;type:text" bson:"postIds,omitempty"  mapstructure:"postIds"`

	ClientName       *string `json:"clientName,omitempty"       bson:"clientName,omitempty"       mapstructure:"clientName"`
	ClientAliasName  *string `json:"clientAliasName,omitempty"  bson:"clientAliasName,omitempty"  mapstructure:"clientAliasName"`
	ClientPhone      *string `json:"clientPhone,omitempty"      bson:"clientPhone,omitempty"      mapstructure:"clientPhone"`
	ClientEmail      *string `json:"clientEmail,omitempty"      bson:"clientEmail,omitempty"      mapstructure:"clientEmail"`
	ClientBio        *string `json:"clientBio,omitempty"        bson:"clientBio,omitempty"        mapstructure:"clientBio"`
	ConversationType *string `json:"conversationType,omitempty" bson:"conversationType,omitempty" mapstructure:"conversationType"`
	PlatformType     *string `json:"platformType,omitempty"     bson:"platformType,omitempty"     mapstructure:"platformType"`
	StaffID          *string `json:"staffId,omitempty"          bson:"staffId,omitempty"          mapstructure:"staffId"`
	OwnerID          *string `json:"ownerId,omitempty"          bson:"ownerId,omitempty"          mapstructure:"ownerId"`
	IsSpam           *bool   `json:"isSpam,omitempty"           bson:"isSpam,omitempty"           mapstructure:"isSpam"`
	HasInbox         bool    `json:"hasInbox,omitempty"         bson:"hasInbox,omitempty"         mapstructure:"hasInbox"`
	HasPost          bool    `json:"hasPost,omitempty"          bson:"hasPost,omitempty"          mapstructure:"hasPost"`
	IsGroup          bool    `json:"isGroup,omitempty"          bson:"isGroup,omitempty"          mapstructure:"isGroup"`

	// CreatedAt is the source creation time, used as the recency fallback when
	// LastMessageTime is absent.
	CreatedAt *int64 `json:"createdAt,omitempty" gorm:"autoCreateTime:false" bson:"createdAt,omitempty" mapstructure:"createdAt"`

	// LastUpdate is set on every write by the merger. Bookkeeping only.
	LastUpdate int64 `json:"lastUpdate" gorm:"not null" bson:"lastUpdate" mapstructure:"-"`
}

func (Conversation) TableName() string { return "conversations" }

// EffectiveTime is the recency used for conflict resolution: the last message
// time, else the creation time, else 0.
func (c *Conversation) EffectiveTime() int64 {
	if c == nil {
		return 0
	}
	if c.LastMessageTime != nil {
		return *c.LastMessageTime
	}
	if c.CreatedAt != nil {
		return *c.CreatedAt
	}
	return 0
}

// MessageTime returns LastMessageTime or 0 when absent.
func (c *Conversation) MessageTime() int64 {
	if c == nil || c.LastMessageTime == nil {
		return 0
	}
	return *c.LastMessageTime
}

// Meta is a key/value bookkeeping row. The only key in use is WatermarkKey.
type Meta struct {
	Key   string `json:"key"   gorm:"primaryKey" bson:"_id"`
	Value int64  `json:"value" gorm:"not null"   bson:"value"`
}

func (Meta) TableName() string { return "meta" }

// RawRecord is one undecoded conversation object from a snapshot archive.
type RawRecord map[string]any

// MessageEvent is a single realtime message notification.
type MessageEvent struct {
	PageID          string `json:"pageId"`
	ClientID        string `json:"clientId"`
	MessageText     string `json:"messageText"`
	MessageType     string `json:"messageType"`
	LastMessageTime int64  `json:"lastMessageTime"`
	MessageID       string `json:"messageId"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
