package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/Warpcall/internal/utils"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TransferMode represents send or receive
type TransferMode int

const (
	ModeSend TransferMode = iota
	ModeReceive
)

type updateKind int

const (
	updateAdd updateKind = iota
	updateProgress
	updateComplete
	updateFailed
	updateState
)

type transferUpdate struct {
	kind    updateKind
	fileID  int
	name    string
	size    int64
	current int64
	text    string
}

// tickMsg is sent periodically to refresh speeds
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// TransferUI drives a live bubbletea view of file transfers. Files can be
// added while it runs, which is how the receiving side learns about them.
type TransferUI struct {
	program *tea.Program
	model   *transferModel
	updates chan transferUpdate
	done    chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	nextID   int
	stopOnce sync.Once
}

// NewTransferUI creates a transfer view. onCancel runs when the user asks
// to quit from inside the view.
func NewTransferUI(mode TransferMode, onCancel func()) *TransferUI {
	updates := make(chan transferUpdate, 100)
	done := make(chan struct{})
	model := newTransferModel(mode, updates, done, onCancel)
	return &TransferUI{
		program: tea.NewProgram(model),
		model:   model,
		updates: updates,
		done:    done,
	}
}

// Start runs the view in a goroutine
func (ui *TransferUI) Start() {
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		// Inline mode keeps earlier terminal output visible
		if _, err := ui.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// AddFile registers a file and returns its id for later updates
func (ui *TransferUI) AddFile(name string, size int64) int {
	ui.mu.Lock()
	id := ui.nextID
	ui.nextID++
	ui.mu.Unlock()

	ui.send(transferUpdate{kind: updateAdd, fileID: id, name: name, size: size}, true)
	return id
}

// UpdateProgress may be dropped when the view is behind
func (ui *TransferUI) UpdateProgress(fileID int, current int64) {
	ui.send(transferUpdate{kind: updateProgress, fileID: fileID, current: current}, false)
}

func (ui *TransferUI) MarkComplete(fileID int) {
	ui.send(transferUpdate{kind: updateComplete, fileID: fileID}, true)
}

func (ui *TransferUI) MarkFailed(fileID int, errMsg string) {
	ui.send(transferUpdate{kind: updateFailed, fileID: fileID, text: errMsg}, true)
}

// SetState sets the status line
func (ui *TransferUI) SetState(state string) {
	ui.send(transferUpdate{kind: updateState, text: state}, true)
}

func (ui *TransferUI) send(u transferUpdate, wait bool) {
	if !wait {
		select {
		case ui.updates <- u:
		default:
		}
		return
	}
	select {
	case ui.updates <- u:
	case <-ui.done:
	}
}

// Stop quits the view and waits for it to restore the terminal
func (ui *TransferUI) Stop() {
	ui.stopOnce.Do(func() {
		close(ui.done)
		ui.program.Quit()
		ui.wg.Wait()
	})
}

type fileProgress struct {
	name      string
	size      int64
	current   int64
	startTime time.Time
	complete  bool
	failed    bool
	errMsg    string
}

type transferModel struct {
	mode     TransferMode
	state    string
	files    []*fileProgress
	progBars []progress.Model
	spinner  spinner.Model
	width    int
	quitting bool

	updates  <-chan transferUpdate
	done     <-chan struct{}
	onCancel func()
}

func newTransferModel(mode TransferMode, updates <-chan transferUpdate, done <-chan struct{}, onCancel func()) *transferModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &transferModel{
		mode:     mode,
		state:    "Waiting for data channel...",
		spinner:  s,
		width:    25,
		updates:  updates,
		done:     done,
		onCancel: onCancel,
	}
}

func (m *transferModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), tickCmd())
}

func (m *transferModel) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case u := <-m.updates:
			return u
		case <-m.done:
			return nil
		}
	}
}

func (m *transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.onCancel != nil {
				m.onCancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = min(25, msg.Width-60)
		for i := range m.progBars {
			m.progBars[i].Width = m.width
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		if !m.quitting {
			cmds = append(cmds, tickCmd())
		}

	case transferUpdate:
		m.apply(msg)
		cmds = append(cmds, m.listen())

	case progress.FrameMsg:
		for i := range m.progBars {
			model, cmd := m.progBars[i].Update(msg)
			m.progBars[i] = model.(progress.Model)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *transferModel) apply(u transferUpdate) {
	if u.kind == updateState {
		m.state = u.text
		return
	}
	if u.kind == updateAdd {
		m.files = append(m.files, &fileProgress{name: u.name, size: u.size})
		m.progBars = append(m.progBars, progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(max(m.width, 10)),
			progress.WithoutPercentage(),
		))
		return
	}
	if u.fileID < 0 || u.fileID >= len(m.files) {
		return
	}

	file := m.files[u.fileID]
	switch u.kind {
	case updateProgress:
		if file.startTime.IsZero() {
			file.startTime = time.Now()
		}
		file.current = u.current
	case updateComplete:
		file.complete = true
		file.current = file.size
	case updateFailed:
		file.failed = true
		file.errMsg = u.text
	}
}

func (m *transferModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	modeIcon, modeText := IconSend, "Sending"
	if m.mode == ModeReceive {
		modeIcon, modeText = IconReceive, "Receiving"
	}
	fmt.Fprintf(&b, "\n%s %s Files\n\n", modeIcon, modeText)
	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.state)

	for i, f := range m.files {
		var icon string
		var nameStyle lipgloss.Style

		switch {
		case f.failed:
			icon, nameStyle = IconError, ErrorStyle
		case f.complete:
			icon, nameStyle = IconSuccess, SuccessStyle
		case f.current > 0:
			icon, nameStyle = m.spinner.View(), lipgloss.NewStyle()
		default:
			icon, nameStyle = "○", MutedStyle
		}

		fmt.Fprintf(&b, "  %s %s ", icon, nameStyle.Width(24).Render(truncateString(f.name, 22)))

		percent := 1.0
		if f.size > 0 {
			percent = float64(f.current) / float64(f.size)
		}
		if !f.complete && f.size == 0 {
			percent = 0
		}
		b.WriteString(m.progBars[i].ViewAs(percent))
		fmt.Fprintf(&b, " %5.1f%%", percent*100)

		if f.failed {
			b.WriteString(ErrorStyle.Render(" " + f.errMsg))
		} else if !f.complete && f.current > 0 && !f.startTime.IsZero() {
			if elapsed := time.Since(f.startTime); elapsed > 0 {
				speed := float64(f.current) / elapsed.Seconds()
				b.WriteString(MutedStyle.Render(" " + utils.FormatSpeed(speed)))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to cancel"))
	return b.String()
}
