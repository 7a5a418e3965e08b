// Package notify implements the alert notification channels.
package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hostpanel/backend/internal/domain"
)

func subject(a domain.Alert) string {
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(a.Severity)), a.Category, a.Message)
}

// plainText renders the alert body shared by email and Telegram.
func plainText(a domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", a.Message)
	fmt.Fprintf(&b, "Severity: %s\n", a.Severity)
	fmt.Fprintf(&b, "Category: %s\n", a.Category)
	if a.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", a.Source)
	}
	fmt.Fprintf(&b, "Detected: %s\n", a.DetectedAt.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "Key: %s\n", a.DedupKey)
	for _, k := range sortedLabelKeys(a.Labels) {
		fmt.Fprintf(&b, "%s: %s\n", k, a.Labels[k])
	}
	return b.String()
}

func sortedLabelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func severityColor(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return 0xd32f2f
	case domain.SeverityWarning:
		return 0xf9a825
	default:
		return 0x1976d2
	}
}

func severityHex(s domain.Severity) string {
	return fmt.Sprintf("#%06x", severityColor(s))
}
