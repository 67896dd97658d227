package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rivo/tview"

	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/internal/presenter"
	"github.com/aura-pulse/backend/internal/streamclient"
)

const maxCloudTerms = 12

func stateColor(s streamclient.ConnectionState) string {
	switch s {
	case streamclient.StateConnected:
		return "green"
	case streamclient.StateConnecting:
		return "yellow"
	case streamclient.StateError:
		return "red"
	}
	return "gray"
}

// formatFrame renders a frame as tview color-tagged text.
func formatFrame(fr presenter.Frame) string {
	var b strings.Builder
	a := fr.Analytics

	status := "ended"
	if fr.Session.IsActive {
		status = "active"
	}
	fmt.Fprintf(&b, "[::b]%s[::-]  code [yellow]%s[white]  %s  [%s]● %s[white]",
		tview.Escape(fr.Session.Name), fr.Session.Code, status, stateColor(fr.State), fr.State)
	if fr.State != streamclient.StateConnected && fr.Reconnect > 0 {
		fmt.Fprintf(&b, " (retry in %s)", fr.Reconnect)
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "participants %d   in progress %d   completed %d   response rate %d%%\n",
		a.Total, a.ActiveCount, a.CompletedCount, a.ResponseRate)
	fmt.Fprintf(&b, "DNA [::b]%s[::-]\n\n", a.DNA)

	for _, dim := range models.Dimensions {
		v := a.Averages.Get(dim)
		fmt.Fprintf(&b, "%-15s %3d %s\n", dim, v, bar(v, 30))
	}
	b.WriteString("\n")

	if len(a.Cohorts) > 0 {
		labels := make([]string, 0, len(a.Cohorts))
		for k := range a.Cohorts {
			labels = append(labels, k)
		}
		sort.Strings(labels)
		parts := make([]string, 0, len(labels))
		for _, k := range labels {
			parts = append(parts, k+" "+strconv.Itoa(a.Cohorts[k]))
		}
		b.WriteString("cohorts  " + strings.Join(parts, " · ") + "\n")
	}
	if len(a.WordCloud) > 0 {
		terms := a.WordCloud
		if len(terms) > maxCloudTerms {
			terms = terms[:maxCloudTerms]
		}
		parts := make([]string, 0, len(terms))
		for _, t := range terms {
			parts = append(parts, t.Text)
		}
		b.WriteString("words    " + strings.Join(parts, ", ") + "\n")
	}
	b.WriteString("\n")

	for i, p := range fr.Participants {
		mark := "[gray]…[white]"
		if p.Completed {
			mark = "[green]✓[white]"
		}
		cohort := p.Cohort
		if cohort == "" {
			cohort = models.CohortUnknown
		}
		fmt.Fprintf(&b, "%3d %s %s [gray](%s, %d answers)[white]\n", i+1, mark, tview.Escape(p.Name), cohort, len(p.Answers))
	}
	return b.String()
}

// summaryLine is the one-line form used by --plain.
func summaryLine(fr presenter.Frame) string {
	a := fr.Analytics
	return fmt.Sprintf("%s [%s] %s total=%d completed=%d rate=%d%% dna=%q",
		fr.Session.Code, fr.State, activeWord(fr.Session.IsActive), a.Total, a.CompletedCount, a.ResponseRate, a.DNA)
}

func activeWord(active bool) string {
	if active {
		return "active"
	}
	return "ended"
}

func bar(v, width int) string {
	n := v * width / models.ScoreMax
	if n < 0 {
		n = 0
	}
	if n > width {
		n = width
	}
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}
