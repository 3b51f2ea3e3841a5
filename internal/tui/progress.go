package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/vvka-141/stockimport/pkg/stockimport"
)

type chunkMsg stockimport.ChunkEvent

type finishedMsg struct{}

// progressModel renders the chunk currently in flight and running totals.
type progressModel struct {
	title   string
	spinner spinner.Model

	current    stockimport.ChunkEvent
	started    bool
	committed  int
	rolledBack int
	skipped    int
	inserted   int64
	rows       int
	done       bool
}

func newProgressModel(title string) progressModel {
	return progressModel{
		title: title,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(SpinnerStyle),
		),
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case chunkMsg:
		m.observe(stockimport.ChunkEvent(msg))
		return m, nil
	case finishedMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) observe(ev stockimport.ChunkEvent) {
	m.current = ev
	m.started = true
	switch ev.State {
	case stockimport.ChunkCommitted:
		m.committed++
		m.rows += ev.Rows
		m.inserted += ev.Inserted
	case stockimport.ChunkRolledBack:
		m.rolledBack++
		m.rows += ev.Rows
	case stockimport.ChunkNotAttempted:
		m.skipped++
		m.rows += ev.Rows
	}
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(TitleStyle.Render(m.title))
	if m.started {
		fmt.Fprintf(&b, "  chunk %d %s %s (%d rows)", m.current.Index, SymbolArrowRight, m.current.State, m.current.Rows)
	}
	b.WriteString("\n")

	counts := fmt.Sprintf("%s %d committed  %s %d rolled back  %s %d not attempted  %s %d inserted of %d",
		SymbolCheck, m.committed, SymbolCross, m.rolledBack, SymbolSkip, m.skipped, SymbolBullet, m.inserted, m.rows)
	b.WriteString(MutedStyle.Render(counts))
	b.WriteString("\n")
	return b.String()
}

// ProgressView draws a live chunk progress line on a terminal while an
// import runs. Log lines are printed above it.
type ProgressView struct {
	program *tea.Program
	done    chan struct{}
	err     error
}

// NewProgressView creates a view that renders to out. It never reads input
// and leaves signal handling to the caller.
func NewProgressView(title string, out io.Writer) *ProgressView {
	program := tea.NewProgram(newProgressModel(title),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	return &ProgressView{program: program, done: make(chan struct{})}
}

// Start begins rendering in the background.
func (v *ProgressView) Start() {
	go func() {
		defer close(v.done)
		_, v.err = v.program.Run()
	}()
}

// Observe is a stockimport.ProgressFunc.
func (v *ProgressView) Observe(ev stockimport.ChunkEvent) {
	v.program.Send(chunkMsg(ev))
}

// Stop clears the view and waits for the renderer to exit.
func (v *ProgressView) Stop() error {
	v.program.Send(finishedMsg{})
	<-v.done
	return v.err
}

// Logger returns a stockimport.Logger that prints above the live view.
func (v *ProgressView) Logger(verbose bool) stockimport.Logger {
	return &viewLogger{program: v.program, verbose: verbose}
}

type viewLogger struct {
	program *tea.Program
	verbose bool
}

func (l *viewLogger) Verbose(format string, args ...interface{}) {
	if l.verbose {
		l.program.Println(MutedStyle.Render(sprintf(format, args)))
	}
}

func (l *viewLogger) Info(format string, args ...interface{}) {
	l.program.Println(sprintf(format, args))
}

func (l *viewLogger) Warn(format string, args ...interface{}) {
	l.program.Println(WarningStyle.Render("[WARN] ") + sprintf(format, args))
}

func (l *viewLogger) Error(format string, args ...interface{}) {
	l.program.Println(ErrorStyle.Render("[ERROR] ") + sprintf(format, args))
}

func sprintf(format string, args []interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
