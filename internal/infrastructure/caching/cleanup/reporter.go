// Package cleanup provides ascii reporter
package cleanup

import (
	"fmt"
	"strings"
	"time"

	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/interfaces"
)

const (
	cyan        = "\033[38;2;86;182;194m"  // One Dark Cyan: #56B6C2
	cyanBright  = "\033[38;2;97;228;240m"  // Brighter Cyan: #61E4F0
	dimCyan     = "\033[38;2;47;91;102m"   // Dim Cyan: #2F5B66
	grey        = "\033[38;2;110;118;129m" // Brighter Grey: #6E7681
	dimGrey     = "\033[38;2;75;82;99m"    // Darker Grey: #4B5263
	success     = "\033[38;2;62;130;144m"  // Dim Cyan: #3E8290
	warning     = "\033[38;2;229;192;123m" // One Dark Yellow: #E5C07B
	errorRed    = "\033[38;2;224;108;117m" // One Dark Red: #E06C75
	white       = "\033[38;2;171;178;191m" // One Dark Foreground: #ABB2BF
	whiteBright = "\033[38;2;220;225;230m" // Brighter White
	reset       = "\033[0m"
	bold        = "\033[1m"
)

type Reporter struct {
	cache interfaces.Cache
}

func NewReporter(cache interfaces.Cache) *Reporter {
	return &Reporter{cache: cache}
}

func (r *Reporter) LogHeader(title string) {
	fmt.Printf("%s%s✓ %s %s\n", bold, cyan, strings.ToUpper(title), reset)
}

func (r *Reporter) LogSubHeader(text string) {
	fmt.Printf("%s%s░▒▓ %s %s\n", bold, dimCyan, text, reset)
}

func (r *Reporter) LogStepSuccess(message string, args ...any) {
	formattedMsg := fmt.Sprintf(message, args...)
	fmt.Printf("%s⚡ %s%s...%s\n", dimGrey, grey, formattedMsg, reset)
}

func (r *Reporter) LogStage(message string, args ...any) {
	formattedMsg := fmt.Sprintf(message, args...)
	fmt.Printf("%s%s✦ %s%s%s\n", success, bold, grey, formattedMsg, reset)
}

func (r *Reporter) LogSuccess(message string, args ...any) {
	formattedMsg := fmt.Sprintf(message, args...)
	fmt.Printf("%s%s✦ %s%s%s\n", success, bold, white, formattedMsg, reset)
}

func (r *Reporter) LogError(message string, err error) {
	fmt.Printf("%s%s✖ ERROR: %s%s: %v%s\n", bold, errorRed, grey, message, err, reset)
}

func (r *Reporter) LogWarning(message string, args ...any) {
	formattedMsg := fmt.Sprintf(message, args...)
	fmt.Printf("%s%s⚠ WARNING: %s%s%s\n", bold, warning, grey, formattedMsg, reset)
}

func (r *Reporter) LogInfo(message string, args ...any) {
	formattedMsg := fmt.Sprintf(message, args...)
	fmt.Printf("%s▶ %s%s%s\n", dimGrey, grey, formattedMsg, reset)
}

func (r *Reporter) GenerateUserReport(userID string) string {
	var report strings.Builder
	timestamp := time.Now().UTC().Format("2006-01-02 15:04:05 MST")

	// User header with bright white id
	report.WriteString(fmt.Sprintf("%s%s▓ %s | User: %s%s %s\n", bold, dimCyan, timestamp, whiteBright, userID, reset))

	snapshot, exists := r.cache.GetSnapshot(userID)
	if !exists {
		report.WriteString(fmt.Sprintf("%s✖ %sSnapshot: %sNOT LOADED%s\n",
			errorRed, grey, errorRed, reset))
		return report.String()
	}

	// Status line for ledger and pending sync state
	var statusLine strings.Builder
	statusLine.WriteString(fmt.Sprintf("%s✦ %sTotal XP: %s%d%s",
		success, grey, cyanBright, snapshot.TotalXP, reset))
	statusLine.WriteString("  ")

	if pending := r.cache.PendingGrants(userID); len(pending) > 0 {
		statusLine.WriteString(fmt.Sprintf("%s✦ %sPending Grants: %s%d%s",
			success, grey, white, len(pending), reset))
	} else {
		statusLine.WriteString(fmt.Sprintf("%s○ %sPending Grants: %sNONE%s",
			dimGrey, grey, cyan, reset))
	}
	report.WriteString(statusLine.String() + "\n")

	// Cached state line (lowercase labels)
	var countsLine strings.Builder
	countsLine.WriteString(fmt.Sprintf("%s✦ cached state:%s", cyanBright, reset))

	counts := []struct {
		name  string
		value int
	}{
		{"streak", snapshot.StreakCount},
		{"daily", snapshot.DailyEarned},
		{"goal", snapshot.DailyGoalXP},
		{"progress", len(snapshot.ProgressRows)},
	}

	for _, c := range counts {
		countsLine.WriteString(" ")
		if c.value > 0 {
			countsLine.WriteString(fmt.Sprintf("%s%s:%s%d", dimCyan, c.name, cyan, c.value))
		} else {
			countsLine.WriteString(fmt.Sprintf("%s%s:%s--", dimGrey, c.name, dimGrey))
		}
	}
	report.WriteString(countsLine.String() + "\n")

	// Activity line
	idle := time.Since(snapshot.LastActivity).Round(time.Second)
	report.WriteString(fmt.Sprintf("%s✦ %stz:%s%s %sidle:%s%v%s\n",
		success, dimCyan, cyan, snapshot.Timezone, dimCyan, cyan, idle, reset))

	return report.String()
}
