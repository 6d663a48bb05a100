package youtube

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	watchURLPrefix       = "https://www.youtube.com/watch?v="
	embedURLPrefix       = "https://www.youtube.com/embed/"
	maxDescriptionLength = 200
)

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration converts an ISO-8601 video duration such as PT1H2M3S into
// seconds. Live and upcoming videos report P0D or nothing at all.
func ParseISODuration(value string) (int, bool) {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" || value == "P" || value == "PT" {
		return 0, false
	}
	match := isoDurationPattern.FindStringSubmatch(value)
	if match == nil {
		return 0, false
	}
	total := 0
	for i, unit := range []int{86400, 3600, 60, 1} {
		part := match[i+1]
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, false
		}
		total += n * unit
	}
	return total, true
}

// FormatDuration renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// CleanTitle decodes the HTML entities the search API leaves in titles.
func CleanTitle(value string) string {
	return strings.TrimSpace(html.UnescapeString(value))
}

// TruncateDescription keeps the first 200 characters and marks the cut.
func TruncateDescription(value string) string {
	value = strings.TrimSpace(html.UnescapeString(value))
	if utf8.RuneCountInString(value) <= maxDescriptionLength {
		return value
	}
	runes := []rune(value)
	return strings.TrimSpace(string(runes[:maxDescriptionLength])) + "..."
}

func WatchURL(id string) string {
	return watchURLPrefix + id
}

func EmbedURL(id string) string {
	return embedURLPrefix + id
}
