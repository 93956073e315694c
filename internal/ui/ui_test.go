package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
	assert.Equal(t, "héllo...", truncateString("héllowörld", 8))
}

func TestFileTableView(t *testing.T) {
	view := FileTableView([]FileTableItem{
		{Index: 1, Name: "notes.txt", Size: 2048, Type: "text/plain"},
		{Index: 2, Name: "clip.ivf", Size: 0, Type: "video/x-ivf"},
	})
	assert.Contains(t, view, "notes.txt")
	assert.Contains(t, view, "2.00 KB")
	assert.Contains(t, view, "video/x-ivf")

	assert.Contains(t, FileTableView(nil), "No files")
}

func TestTransferSummaryView(t *testing.T) {
	view := TransferSummaryView("Summary", TransferSummary{
		Status:    "Complete",
		Files:     3,
		TotalSize: "1.00 MB",
		Duration:  "2s",
		Speed:     "512.00 KB/s",
	})
	for _, want := range []string{"Summary", "Complete", "1.00 MB", "512.00 KB/s", "Avg Speed"} {
		assert.Contains(t, view, want)
	}
}

func TestTransferModelTracksFiles(t *testing.T) {
	updates := make(chan transferUpdate)
	done := make(chan struct{})
	m := newTransferModel(ModeReceive, updates, done, nil)

	m.Update(transferUpdate{kind: updateAdd, fileID: 0, name: "a.bin", size: 100})
	m.Update(transferUpdate{kind: updateAdd, fileID: 1, name: "b.bin", size: 50})
	m.Update(transferUpdate{kind: updateProgress, fileID: 0, current: 40})
	m.Update(transferUpdate{kind: updateComplete, fileID: 1})
	m.Update(transferUpdate{kind: updateProgress, fileID: 9, current: 1})
	m.Update(transferUpdate{kind: updateState, text: "Receiving from bob"})

	require.Len(t, m.files, 2)
	assert.Equal(t, int64(40), m.files[0].current)
	assert.True(t, m.files[1].complete)
	assert.Equal(t, int64(50), m.files[1].current)

	view := m.View()
	assert.Contains(t, view, "Receiving from bob")
	assert.Contains(t, view, "a.bin")
	assert.Contains(t, view, " 40.0%")
	assert.Contains(t, view, "100.0%")
}

func TestTransferModelFailure(t *testing.T) {
	m := newTransferModel(ModeSend, nil, nil, nil)
	m.Update(transferUpdate{kind: updateAdd, name: "c.bin", size: 10})
	m.Update(transferUpdate{kind: updateFailed, fileID: 0, text: "channel closed"})

	assert.True(t, m.files[0].failed)
	assert.Contains(t, m.View(), "channel closed")
}

func TestTransferModelCancel(t *testing.T) {
	cancelled := false
	m := newTransferModel(ModeSend, nil, nil, func() { cancelled = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, cancelled)
	require.NotNil(t, cmd)
	assert.Empty(t, m.View())
}
