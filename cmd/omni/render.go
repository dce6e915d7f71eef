package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/nulzo/omni-router/internal/cli"
	"github.com/nulzo/omni-router/pkg/api"
)

const barWidth = 20

func renderDecision(w io.Writer, d *api.RoutingDecision) {
	fmt.Fprintf(w, "%s task: %s\n\n", cli.Arrow(), cli.Style(d.TaskType, cli.Bold))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tMODEL\tSCORE\t\tSEMANTIC\tBENCHMARK")
	for i, m := range d.Models {
		fmt.Fprintf(tw, "%d\t%s\t%.3f\t%s\t%.3f\t%.3f\n",
			i+1, m.ModelID, m.Score, cli.ScoreBar(m.Score, barWidth),
			d.Scores.Semantic[m.ModelID], d.Scores.Benchmark[m.ModelID])
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%s\n", cli.Style(d.Explanation, cli.Dim))
}

func renderRanked(w io.Writer, ranked []api.RankedCandidate) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCORE\t\tCANDIDATE")
	for i, r := range ranked {
		fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\n", i+1, r.Score, cli.ScoreBar(r.Score, barWidth), oneLine(r.Text, 60))
	}
	_ = tw.Flush()
}

func renderCompletion(w io.Writer, resp *api.CompletionResponse) {
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)

	meta := fmt.Sprintf("mode=%s queried=%s", resp.Mode, strings.Join(resp.Queried, ","))
	if len(resp.Failed) > 0 {
		meta += " failed=" + strings.Join(resp.Failed, ",")
	}
	if resp.Mode == api.ModeEnsemble {
		meta += fmt.Sprintf(" candidates=%d fused=%t", len(resp.Candidates), resp.Fused)
	}
	meta += fmt.Sprintf(" latency=%dms", resp.LatencyMS)
	fmt.Fprintln(w, cli.Style(meta, cli.Dim))
}

func renderModels(w io.Writer, models []api.Model) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tKIND\tCONTEXT\tAVAILABLE")
	for _, m := range models {
		mark := cli.CrossMark()
		if m.Available {
			mark = cli.CheckMark()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", m.ID, m.Provider, m.Capability, m.ContextLength, mark)
	}
	_ = tw.Flush()
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
