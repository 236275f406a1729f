package query

// TriState is a YES/NO filter value. The empty value imposes no constraint.
type TriState string

const (
	Yes TriState = "YES"
	No  TriState = "NO"
)

// DisplayStyle selects conversations by how they surface in the inbox.
type DisplayStyle string

const (
	DisplayInbox   DisplayStyle = "INBOX"
	DisplayComment DisplayStyle = "COMMENT"
	DisplayGroup   DisplayStyle = "GROUP"
	DisplayFriend  DisplayStyle = "FRIEND"
)

// TimeRange bounds lastMessageTime (inclusive). A nil bound is open.
type TimeRange struct {
	Gte *int64 `json:"gte,omitempty"`
	Lte *int64 `json:"lte,omitempty"`
}

// Filter is a set of optional predicates combined by logical AND.
// Zero values impose no constraint.
type Filter struct {
	UnreadMessage     bool     `json:"unreadMessage,omitempty"`
	NotResponseClient bool     `json:"notResponseClient,omitempty"`
	NotExistLabel     bool     `json:"notExistLabel,omitempty"`
	HavePhone         TriState `json:"havePhone,omitempty"`
	HaveEmail         TriState `json:"haveEmail,omitempty"`
	IsSpam            TriState `json:"isSpam,omitempty"`
	HaveClientName    bool     `json:"haveClientName,omitempty"`
	NotHaveClientBio  bool     `json:"notHaveClientBio,omitempty"`

	ConversationType string       `json:"conversationType,omitempty"`
	PlatformType     string       `json:"platformType,omitempty"`
	DisplayStyle     DisplayStyle `json:"displayStyle,omitempty"`

	PostID          string   `json:"postId,omitempty"`
	StaffIDs        []string `json:"staffIds,omitempty"`
	LabelIDs        []string `json:"labelIds,omitempty"`
	LabelAnd        bool     `json:"labelAnd,omitempty"`
	ExcludeLabelIDs []string `json:"excludeLabelIds,omitempty"`

	TimeRange *TimeRange `json:"timeRange,omitempty"`

	Search string `json:"search,omitempty"`
}
