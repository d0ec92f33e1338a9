package source

import (
	"sort"

	"digest_bot/internal/model"
)

// Coalesce merges raw messages into content units. Messages sharing a
// non-zero group id (an album) collapse into one unit; everything else
// becomes a singleton. Units come back in ascending primary id order.
//
// Within a group, the unit id is the minimum message id, the text is the
// first non-empty text by ascending id, and media references are the union
// across the group.
func Coalesce(msgs []model.RawMessage) []model.ContentUnit {
	if len(msgs) == 0 {
		return nil
	}

	ordered := make([]model.RawMessage, len(msgs))
	copy(ordered, msgs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var units []model.ContentUnit
	index := make(map[int64]int) // group id -> position in units

	for _, msg := range ordered {
		if msg.GroupID == 0 {
			units = append(units, newUnit(msg))
			continue
		}
		pos, ok := index[msg.GroupID]
		if !ok {
			index[msg.GroupID] = len(units)
			units = append(units, newUnit(msg))
			continue
		}
		mergeInto(&units[pos], msg)
	}

	sort.Slice(units, func(i, j int) bool { return units[i].PrimaryID < units[j].PrimaryID })
	return units
}

func newUnit(msg model.RawMessage) model.ContentUnit {
	u := model.ContentUnit{
		PrimaryID: msg.ID,
		Text:      msg.Text,
	}
	for _, m := range msg.Media {
		addMedia(&u, m)
	}
	return u
}

func mergeInto(u *model.ContentUnit, msg model.RawMessage) {
	// Messages arrive in ascending id order, so the primary never changes
	// here, and an empty unit text takes the first text seen.
	if u.Text == "" {
		u.Text = msg.Text
	}
	for _, m := range msg.Media {
		addMedia(u, m)
	}
}

func addMedia(u *model.ContentUnit, m model.MediaRef) {
	u.Media = append(u.Media, m)
	for _, k := range u.Kinds {
		if k == m.Kind {
			return
		}
	}
	u.Kinds = append(u.Kinds, m.Kind)
}
