package query

import (
	"slices"
	"strings"

	"github.com/chirino/conversation-cache/internal/model"
)

// Predicate reports whether a conversation matches.
type Predicate func(c *model.Conversation) bool

// Compile folds the page restriction and every present filter field into one
// predicate. An empty filter with no pageIDs matches everything.
func Compile(f Filter, pageIDs []string) Predicate {
	preds := predicates(f, pageIDs)
	return func(c *model.Conversation) bool {
		for _, p := range preds {
			if !p(c) {
				return false
			}
		}
		return true
	}
}

// predicates returns the active predicates in evaluation order: page
// restriction, flags, enums, set membership, time range, then free text.
func predicates(f Filter, pageIDs []string) []Predicate {
	var preds []Predicate

	if len(pageIDs) > 0 {
		pages := toSet(pageIDs)
		preds = append(preds, func(c *model.Conversation) bool {
			_, ok := pages[c.PageID]
			return ok
		})
	}

	if f.UnreadMessage {
		preds = append(preds, func(c *model.Conversation) bool { return c.UnreadCount > 0 })
	}
	if f.NotResponseClient {
		preds = append(preds, func(c *model.Conversation) bool {
			return c.LastMessageType != nil && model.IsClientMessage(*c.LastMessageType)
		})
	}
	if f.NotExistLabel {
		preds = append(preds, func(c *model.Conversation) bool { return len(c.LabelIDs) == 0 })
	}
	if p := presence(f.HavePhone, func(c *model.Conversation) *string { return c.ClientPhone }); p != nil {
		preds = append(preds, p)
	}
	if p := presence(f.HaveEmail, func(c *model.Conversation) *string { return c.ClientEmail }); p != nil {
		preds = append(preds, p)
	}
	switch f.IsSpam {
	case Yes:
		preds = append(preds, func(c *model.Conversation) bool { return c.IsSpam != nil && *c.IsSpam })
	case No:
		preds = append(preds, func(c *model.Conversation) bool { return c.IsSpam == nil || !*c.IsSpam })
	}
	if f.HaveClientName {
		preds = append(preds, func(c *model.Conversation) bool { return nonEmpty(c.ClientName) })
	}
	if f.NotHaveClientBio {
		preds = append(preds, func(c *model.Conversation) bool { return !nonEmpty(c.ClientBio) })
	}

	if f.ConversationType != "" {
		want := f.ConversationType
		preds = append(preds, func(c *model.Conversation) bool {
			return c.ConversationType != nil && *c.ConversationType == want
		})
	}
	if f.PlatformType != "" {
		want := f.PlatformType
		preds = append(preds, func(c *model.Conversation) bool {
			return c.PlatformType != nil && *c.PlatformType == want
		})
	}
	switch f.DisplayStyle {
	case DisplayInbox:
		preds = append(preds, func(c *model.Conversation) bool { return c.HasInbox })
	case DisplayComment:
		preds = append(preds, func(c *model.Conversation) bool { return c.HasPost })
	case DisplayGroup:
		preds = append(preds, func(c *model.Conversation) bool { return c.IsGroup })
	case DisplayFriend:
		preds = append(preds, func(c *model.Conversation) bool { return !c.IsGroup })
	}

	if f.PostID != "" {
		want := f.PostID
		preds = append(preds, func(c *model.Conversation) bool { return slices.Contains(c.PostIDs, want) })
	}
	if len(f.StaffIDs) > 0 {
		staff := toSet(f.StaffIDs)
		preds = append(preds, func(c *model.Conversation) bool {
			return inSet(staff, c.StaffID) || inSet(staff, c.OwnerID)
		})
	}
	if len(f.LabelIDs) > 0 {
		labels := toSet(f.LabelIDs)
		if f.LabelAnd {
			preds = append(preds, func(c *model.Conversation) bool {
				have := toSet(c.LabelIDs)
				for l := range labels {
					if _, ok := have[l]; !ok {
						return false
					}
				}
				return true
			})
		} else {
			preds = append(preds, func(c *model.Conversation) bool { return anyIn(c.LabelIDs, labels) })
		}
	}
	if len(f.ExcludeLabelIDs) > 0 {
		excluded := toSet(f.ExcludeLabelIDs)
		preds = append(preds, func(c *model.Conversation) bool { return !anyIn(c.LabelIDs, excluded) })
	}

	if f.TimeRange != nil && (f.TimeRange.Gte != nil || f.TimeRange.Lte != nil) {
		tr := *f.TimeRange
		preds = append(preds, func(c *model.Conversation) bool {
			// Cold records compare as 0 here.
			t := c.MessageTime()
			if tr.Gte != nil && t < *tr.Gte {
				return false
			}
			if tr.Lte != nil && t > *tr.Lte {
				return false
			}
			return true
		})
	}

	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		preds = append(preds, func(c *model.Conversation) bool {
			for _, v := range []*string{c.ClientName, c.ClientAliasName, c.ClientPhone, c.ClientEmail, c.LastMessageText, &c.ClientID} {
				if v != nil && strings.Contains(strings.ToLower(*v), needle) {
					return true
				}
			}
			return false
		})
	}

	return preds
}

func presence(want TriState, field func(*model.Conversation) *string) Predicate {
	switch want {
	case Yes:
		return func(c *model.Conversation) bool { return nonEmpty(field(c)) }
	case No:
		return func(c *model.Conversation) bool { return !nonEmpty(field(c)) }
	}
	return nil
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func inSet(set map[string]struct{}, v *string) bool {
	if v == nil {
		return false
	}
	_, ok := set[*v]
	return ok
}

func anyIn(values []string, set map[string]struct{}) bool {
	for _, v := range values {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
