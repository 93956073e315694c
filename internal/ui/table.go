package ui

import (
	"fmt"
	"strconv"

	"github.com/BioHazard786/Warpcall/internal/utils"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// FileTableItem represents a file in the table
type FileTableItem struct {
	Index int
	Name  string
	Size  int64
	Type  string
}

// FileTableView renders files using lipgloss/table
func FileTableView(items []FileTableItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("No files")
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.Itoa(item.Index),
			truncateString(item.Name, 50),
			utils.FormatSize(item.Size),
			truncateString(item.Type, 20),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Name", "Size", "Type").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderFileTable(items []FileTableItem) {
	fmt.Println(FileTableView(items))
}

// SessionInfo describes the local side of a call.
type SessionInfo struct {
	RoomID  string
	LocalID string
	Relay   string
	Video   string
	Audio   string
}

func SessionInfoView(info SessionInfo) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Joined room %s\n\n%s You:    %s\n%s Relay:  %s\n%s Video:  %s\n%s Audio:  %s",
		IconRoom, BoldStyle.Foreground(Primary).Render(info.RoomID),
		IconPeer, info.LocalID,
		IconConnect, MutedStyle.Render(info.Relay),
		IconVideo, orNone(info.Video),
		IconAudio, orNone(info.Audio),
	)
	return boxStyle.Render(content)
}

func RenderSessionInfo(info SessionInfo) {
	fmt.Println(SessionInfoView(info))
}

type TransferSummary struct {
	Status    string
	Files     int
	TotalSize string
	Duration  string
	Speed     string
}

// TransferSummaryView renders the final stats using a go-pretty table
func TransferSummaryView(title string, summary TransferSummary) string {
	t := prettytable.NewWriter()
	t.SetTitle(title)
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRows([]prettytable.Row{
		{"Status", summary.Status},
		{"Files", summary.Files},
		{"Total Size", summary.TotalSize},
		{"Duration", summary.Duration},
		{"Avg Speed", summary.Speed},
	})
	t.SetStyle(prettytable.StyleRounded)
	return t.Render()
}

func RenderTransferSummary(title string, summary TransferSummary) {
	fmt.Println(TransferSummaryView(title, summary))
}

func orNone(s string) string {
	if s == "" {
		return MutedStyle.Render("none")
	}
	return s
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
