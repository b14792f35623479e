package taskrunner

import (
	"fmt"
	"strings"
	"time"

	"github.com/tyemirov/taskscript/internal/values"
)

const (
	summaryStatusSucceededConstant = "ok"
	summaryStatusFailedConstant    = "failed"
	summaryEmptyResultConstant     = "empty"
)

// RenderSummaryLine returns the summary line printed after a task run. Runs without
// a task name produce no summary.
func RenderSummaryLine(outcome Outcome) string {
	if len(outcome.Component) == 0 || len(outcome.Task) == 0 {
		return ""
	}

	status := summaryStatusSucceededConstant
	if outcome.Failed {
		status = summaryStatusFailedConstant
	}

	parts := []string{
		fmt.Sprintf("Summary: task=%s:%s", outcome.Component, outcome.Task),
		fmt.Sprintf("status=%s", status),
	}
	if !outcome.Failed {
		parts = append(parts, fmt.Sprintf("result=%s", renderResult(outcome.Result)))
	}

	duration := outcome.Duration
	if duration < 0 {
		duration = 0
	}
	parts = append(parts, fmt.Sprintf("duration_human=%s", duration.Round(time.Millisecond)))
	parts = append(parts, fmt.Sprintf("duration_ms=%d", duration.Milliseconds()))

	return strings.Join(parts, " ")
}

func renderResult(result values.Value) string {
	if values.IsEmpty(result) {
		return summaryEmptyResultConstant
	}
	rendered := values.Render(result)
	if strings.ContainsAny(rendered, " \t\n") {
		return fmt.Sprintf("%q", rendered)
	}
	return rendered
}
