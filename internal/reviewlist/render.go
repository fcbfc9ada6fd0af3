package reviewlist

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	LoadingText  = "Loading..."
	EmptyText    = "No reviews yet."
	reviewMaxLen = 60
)

// Headers are the table columns, in display order
var Headers = []string{"User", "Product", "Review", "Timestamp"}

var (
	borderColor = lipgloss.AdaptiveColor{Light: "248", Dark: "242"}
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	emptyStyle  = lipgloss.NewStyle().
			Align(lipgloss.Center).
			Foreground(lipgloss.AdaptiveColor{Light: "242", Dark: "246"}).
			Border(lipgloss.RoundedBorder(), false, true, true, true).
			BorderForeground(borderColor)
)

// Rows returns one table row per review, in snapshot order
func Rows(reviews []Review, loc *time.Location) [][]string {
	rows := make([][]string, 0, len(reviews))
	for _, r := range reviews {
		rows = append(rows, []string{
			oneLine(r.UserName),
			oneLine(r.ProductName),
			truncate(oneLine(r.ProductReview), reviewMaxLen),
			FormatTimestamp(r.CreatedAt, loc),
		})
	}
	return rows
}

// Render draws the state: the loading placeholder, the table with an
// empty-state row, or the table with one row per review.
func Render(s State, loc *time.Location) string {
	if s.Loading() {
		return LoadingText
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(Headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			// The header is row 0; data rows start at 1
			if row == 0 {
				return headerStyle
			}
			return cellStyle
		})

	reviews := s.Reviews()
	if len(reviews) == 0 {
		frame := t.BorderBottom(false).Render()
		inner := lipgloss.Width(frame) - 2
		if inner < len(EmptyText) {
			inner = len(EmptyText)
		}
		return frame + "\n" + emptyStyle.Width(inner).Render(EmptyText)
	}

	return t.Rows(Rows(reviews, loc)...).Render()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
