// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"time"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

// DayGroup is a run of consecutive rows created on the same calendar day.
type DayGroup struct {
	Day      time.Time
	Messages []model.Message
}

// Label returns the divider text for the group relative to now.
func (g DayGroup) Label(now time.Time) string {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case g.Day.Equal(today):
		return "Today"
	case g.Day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case g.Day.Year() == now.Year():
		return g.Day.Format("Jan 2")
	default:
		return g.Day.Format("Jan 2, 2006")
	}
}

// GroupByDay splits ordered rows into day groups for date dividers.
func GroupByDay(msgs []model.Message) []DayGroup {
	var groups []DayGroup
	for _, m := range msgs {
		day := m.Day()
		if n := len(groups); n > 0 && groups[n-1].Day.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DayGroup{Day: day, Messages: []model.Message{m}})
	}
	return groups
}
