// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package monitor

import (
	"github.com/autobrr/arrwarden/internal/arr"
	"github.com/autobrr/arrwarden/internal/models"
)

// Reconcile syncs the tracked items with a fresh queue page. Items appearing
// for the first time are tracked only once they report a time remaining;
// tracked items no longer in the queue are dropped. It returns the ids added
// and removed so the caller can log them.
func Reconcile(rec *models.RunRecord, page *arr.QueuePage) (added, removed []int) {
	if page != nil {
		for i := range page.Records {
			item := &page.Records[i]
			if item.Timeleft == nil {
				continue
			}
			if rec.Track(models.TrackedItem{Title: item.TitleOrID(), ID: item.ID}) {
				added = append(added, item.ID)
			}
		}
	}

	rec.Retain(func(t *models.TrackedItem) bool {
		if _, ok := page.Lookup(t.ID); ok {
			return true
		}
		removed = append(removed, t.ID)
		return false
	})

	return added, removed
}
