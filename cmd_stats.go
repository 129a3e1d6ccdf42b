package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/audio-analyzer/search"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show library statistics from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, log, err := ctx.ensure()
			if err != nil {
				return err
			}
			idx, err := search.New(conf.Elastic, log)
			if err != nil {
				return err
			}
			st, err := idx.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStats(st))
			return nil
		},
	}
}

func renderStats(st search.Stats) string {
	summary := renderTable(
		[]string{"Records", "Avg confidence", "Top emotion"},
		[][]string{{
			strconv.FormatInt(st.Total, 10),
			strconv.FormatFloat(st.AverageConfidence, 'f', 2, 64),
			st.TopEmotion,
		}},
		0, 1,
	)

	labels := make([]string, 0, len(st.Emotions))
	for l := range st.Emotions {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if st.Emotions[labels[i]] != st.Emotions[labels[j]] {
			return st.Emotions[labels[i]] > st.Emotions[labels[j]]
		}
		return labels[i] < labels[j]
	})
	rows := make([][]string, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, []string{l, strconv.FormatInt(st.Emotions[l], 10)})
	}
	if len(rows) == 0 {
		return summary + "\n"
	}
	return summary + "\n" + renderTable([]string{"Emotion", "Records"}, rows, 1) + "\n"
}
