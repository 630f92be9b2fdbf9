package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/repreneur-cli/internal/model"
)

// procedureOrder lists procedure statuses by increasing severity.
var procedureOrder = []string{"NONE", "RECOVERY_PLAN", "COLLECTIVE_PROCEEDING_OPEN", "JUDICIAL_LIQUIDATION"}

// FormatReport renders a run summary for the terminal.
func FormatReport(s *model.RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s: %s\n", s.RunID, s.Status)
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", s.Error)
	}
	b.WriteString("\n")

	b.WriteString("## Sources\n")
	if len(s.Sources) == 0 {
		b.WriteString("No sources ran.\n")
	}
	for _, src := range s.Sources {
		fmt.Fprintf(&b, "- %s: fetched %d, kept %d, dropped %d (%dms)\n",
			src.Source, src.Fetched, src.Normalized, src.DroppedTotal(), src.DurationMs)
		if src.ErrorKind != "" {
			fmt.Fprintf(&b, "  %s: %s\n", src.ErrorKind, src.Error)
		}
		reasons := make([]string, 0, len(src.Dropped))
		for r := range src.Dropped {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(&b, "  dropped %s: %d\n", r, src.Dropped[r])
		}
	}
	b.WriteString("\n")

	b.WriteString("## Merge\n")
	fmt.Fprintf(&b, "- Baseline: %d\n", s.Baseline)
	fmt.Fprintf(&b, "- New: %d\n", s.New)
	fmt.Fprintf(&b, "- Merged: %d\n", s.Merged)
	fmt.Fprintf(&b, "- Total: %d\n\n", s.Total)

	b.WriteString("## Répartition\n")
	fmt.Fprintf(&b, "- %s: %d\n", model.ChannelSuccession, s.Tags[model.ChannelSuccession])
	fmt.Fprintf(&b, "- %s: %d\n", model.ChannelDistressed, s.Tags[model.ChannelDistressed])
	for _, p := range procedureOrder {
		if n := s.Procedures[p]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", p, n)
		}
	}

	if s.SnapshotPath != "" && s.Status == model.RunStatusComplete {
		fmt.Fprintf(&b, "\nSnapshot: %s\n", s.SnapshotPath)
	}
	return b.String()
}
