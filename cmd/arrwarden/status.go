// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/autobrr/arrwarden/internal/domain"
	"github.com/autobrr/arrwarden/internal/models"
)

func renderRecord(mc domain.MonitorConfig, rec *models.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: iteration %d, last run %s, %d tracked\n",
		mc.Name, rec.CurIter, humanize.Time(rec.LastRun.Time()), len(rec.Items))

	if len(rec.Items) == 0 {
		return b.String()
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Title", "Error since", "Samples", "Over limit", "Ratio"})

	warmup := mc.WarmupSamples()
	for _, item := range rec.Items {
		errorSince := "-"
		if item.ErrorTime != nil {
			errorSince = humanize.Time(item.ErrorTime.Time())
		}

		ratio := "-"
		if item.NumTimeleftSamples > 0 && item.NumTimeleftSamples >= warmup {
			ratio = strconv.FormatFloat(item.HopelessRatio(), 'f', 2, 64)
		}

		tw.AppendRow(table.Row{
			item.ID,
			item.Title,
			errorSince,
			item.NumTimeleftSamples,
			item.NumTimeleftSamplesExceedingMax,
			ratio,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	b.WriteString(tw.Render())
	return b.String()
}
