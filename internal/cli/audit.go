package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/marcelocantos/pipesh/internal/audit"
)

// RunAuditVerify checks the run history hash chain.
func RunAuditVerify(w io.Writer, logPath string) int {
	n, err := audit.Verify(logPath)
	if err != nil {
		fmt.Fprintf(w, "run history verification %s after %d entries: %v\n", color.RedString("FAILED"), n, err)
		return 1
	}
	fmt.Fprintf(w, "run history %s: %d entries\n", color.GreenString("verified"), n)
	return 0
}

// RunAuditShow prints the last n history entries as indented JSON.
func RunAuditShow(w io.Writer, logPath string, n int) int {
	entries, err := audit.Tail(logPath, n)
	if err != nil {
		fmt.Fprintf(w, "pipesh audit: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no audit entries")
		return 0
	}
	for _, e := range entries {
		data, _ := json.MarshalIndent(e, "", "  ")
		fmt.Fprintf(w, "%s\n", data)
	}
	return 0
}
