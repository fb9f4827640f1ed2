package client

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/service"
	"github.com/rzbill/forgeq/internal/ui"
)

func ids(v []int64) string {
	if len(v) == 0 {
		return "-"
	}
	parts := make([]string, len(v))
	for i, id := range v {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, ",")
}

// writeFeatures prints one row per feature. statuses may be nil, in which
// case the column is left out.
func writeFeatures(w io.Writer, fs []feature.Feature, statuses map[int64]feature.Status) {
	if len(fs) == 0 {
		fmt.Fprintln(w, ui.Dim("no features"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range fs {
		if statuses != nil {
			fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\tdeps %s\n", f.ID, ui.Status(statuses[f.ID]), f.Category, ui.Bold(f.Name), ids(f.Dependencies))
			continue
		}
		fmt.Fprintf(tw, "#%d\t%s\t%s\tdeps %s\n", f.ID, f.Category, ui.Bold(f.Name), ids(f.Dependencies))
	}
	_ = tw.Flush()
}

func writeFeature(w io.Writer, f feature.Feature) {
	state := "pending"
	switch {
	case f.Passes:
		state = ui.Green("passing")
	case f.InProgress:
		state = ui.Yellow("in progress")
	}
	fmt.Fprintf(w, "%s #%d %s\n", ui.Bold("Feature"), f.ID, ui.Bold(f.Name))
	fmt.Fprintf(w, "  category:     %s\n", f.Category)
	fmt.Fprintf(w, "  priority:     %d\n", f.Priority)
	fmt.Fprintf(w, "  state:        %s\n", state)
	fmt.Fprintf(w, "  dependencies: %s\n", ids(f.Dependencies))
	fmt.Fprintf(w, "  description:  %s\n", f.Description)
	for i, step := range f.Steps {
		fmt.Fprintf(w, "  %2d. %s\n", i+1, step)
	}
}

func writeBlocked(w io.Writer, res service.BlockedResult) {
	if res.Count == 0 {
		fmt.Fprintln(w, ui.Dim("nothing blocked"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, b := range res.Features {
		fmt.Fprintf(tw, "#%d\t%s\twaiting on %s\n", b.ID, ui.Bold(b.Name), ui.Red(ids(b.BlockedBy)))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d of %d blocked\n", res.Count, res.TotalBlocked)
}

func writeGraph(w io.Writer, view service.GraphView) {
	names := make(map[int64]string, len(view.Nodes))
	for _, n := range view.Nodes {
		names[n.ID] = n.Name
	}
	for _, n := range view.Nodes {
		fmt.Fprintf(w, "#%d %s [%s]\n", n.ID, ui.Bold(n.Name), ui.Status(n.Status))
		for _, d := range n.Dependencies {
			fmt.Fprintf(w, "  <- #%d %s\n", d, names[d])
		}
	}
}

func writeOverview(w io.Writer, ov service.Overview) {
	st := ov.Stats
	fmt.Fprintf(w, "%s %d/%d passing (%s), %d in progress\n", ui.Bold("Progress:"), st.Passing, st.Total, ui.Percent(st.Percentage), st.InProgress)
	fmt.Fprintf(w, "%s %d   %s %d\n", ui.Bold("Ready:"), ov.Ready, ui.Bold("Blocked:"), ov.Blocked)
	if len(ov.Next) > 0 {
		fmt.Fprintf(w, "%s %s\n", ui.Bold("Next:"), ids(ov.Next))
	}
	for _, c := range ov.Circular {
		fmt.Fprintf(w, "%s %s\n", ui.BoldRed("Cycle:"), ids(c))
	}
}
