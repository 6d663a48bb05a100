package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"

	"homecook/videosearch/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#fde68a"))

	rankStyle = lipgloss.NewStyle().
			Width(4).
			Foreground(lipgloss.Color("#71717a"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd")).
			Underline(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5"))

	classStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#bbf7d0"))
)

func writeJSON(w io.Writer, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeResponse(w io.Writer, response domain.RecipeResponse, asJSON bool) error {
	if asJSON {
		return writeJSON(w, response)
	}
	_, err := io.WriteString(w, renderResponse(response))
	return err
}

func renderResponse(response domain.RecipeResponse) string {
	var b strings.Builder

	metricLabel := "likes"
	if response.Metric == domain.RankMetricViewCount {
		metricLabel = "views"
	}
	header := fmt.Sprintf("%s videos for %s", response.Mode, strings.Join(response.Tags, ", "))
	if len(response.Tools) > 0 {
		header += " with " + strings.Join(response.Tools, ", ")
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(metaStyle.Render(fmt.Sprintf("ranked by %s, %d of %d, %d ms", metricLabel, len(response.Items), response.Limit, response.ElapsedMS)))
	b.WriteString("\n\n")

	if len(response.Items) == 0 {
		b.WriteString(warnStyle.Render("no videos found"))
		b.WriteString("\n")
	}
	for i, item := range response.Items {
		metric := item.MetricValue(response.Metric)
		meta := []string{humanCount(metric) + " " + metricLabel}
		if item.Duration != "" {
			meta = append(meta, item.Duration)
		}
		if item.ChannelName != "" {
			meta = append(meta, item.ChannelName)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			rankStyle.Render(strconv.Itoa(i+1)+"."),
			lipgloss.JoinVertical(lipgloss.Left,
				titleStyle.Render(item.Title),
				metaStyle.Render(strings.Join(meta, " · ")),
				linkStyle.Render(item.URL),
			),
		))
		b.WriteString("\n")
	}

	for _, task := range response.Tasks {
		if task.OK {
			continue
		}
		b.WriteString(warnStyle.Render(fmt.Sprintf("! %s: %s", strings.Join(task.Tags, "+"), task.Error)))
		b.WriteString("\n")
	}
	return b.String()
}

func writeCatalog(w io.Writer, catalog domain.Catalog, asJSON bool) error {
	if asJSON {
		return writeJSON(w, catalog)
	}
	_, err := io.WriteString(w, renderCatalog(catalog))
	return err
}

func renderCatalog(catalog domain.Catalog) string {
	var b strings.Builder
	sections := []struct {
		name    string
		entries []domain.CatalogEntry
	}{
		{"Vegetables", catalog.Vegetables},
		{"Meats", catalog.Meats},
		{"Staples", catalog.Staples},
		{"Kitchenware", catalog.Tools},
	}
	for _, section := range sections {
		b.WriteString(classStyle.Render(section.name))
		b.WriteString("\n")
		for _, entry := range section.entries {
			b.WriteString("  ")
			b.WriteString(titleStyle.Render(entry.Label))
			b.WriteString(" ")
			b.WriteString(metaStyle.Render("(" + entry.Key + ")"))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func humanCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}
