package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"coredb/pkg/engine/buffer"
	"coredb/pkg/engine/hashindex"
	"coredb/pkg/engine/txnlock"
	"coredb/pkg/ui/base"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// HashIndexStats is the subset of ExtendibleHashTable's surface the
// inspector needs; satisfied by any instantiation regardless of its key
// and value type parameters.
type HashIndexStats interface {
	Stats() (hashindex.Stats, error)
}

const refreshInterval = 500 * time.Millisecond

// Model renders a live view of a buffer pool, an extendible hash index,
// and a lock manager's tracked transactions.
type Model struct {
	pool     *buffer.Pool
	index    HashIndexStats
	registry *txnlock.Registry

	framesTable table.Model
	txnTable    table.Model
	help        help.Model

	width      int
	height     int
	showHelp   bool
	focus      int // 0: frames, 1: transactions
	lastError  error
	lastTick   time.Time
	indexStats hashindex.Stats
}

// NewModel builds an inspector over the given pool, hash index, and
// transaction registry. index may be nil if no hash index is wired up;
// registry may be nil if no lock manager is in use.
func NewModel(pool *buffer.Pool, index HashIndexStats, registry *txnlock.Registry) Model {
	frames := table.New(
		table.WithColumns([]table.Column{
			{Title: "Frame", Width: 8},
			{Title: "Page", Width: 10},
			{Title: "Pins", Width: 6},
			{Title: "Dirty", Width: 6},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	txns := table.New(
		table.WithColumns([]table.Column{
			{Title: "Txn", Width: 8},
			{Title: "State", Width: 12},
			{Title: "Isolation", Width: 16},
		}),
		table.WithFocused(false),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(primaryColor).
		BorderBottom(true).
		Bold(true).
		Foreground(primaryColor)
	s.Selected = s.Selected.
		Foreground(bgDark).
		Background(secondaryColor).
		Bold(false)
	frames.SetStyles(s)
	txns.SetStyles(s)

	return Model{
		pool:        pool,
		index:       index,
		registry:    registry,
		framesTable: frames,
		txnTable:    txns,
		help:        help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.refresh())
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type tickMsg time.Time

type refreshMsg struct {
	frames     []buffer.FrameSnapshot
	evictable  []buffer.FrameID
	indexStats hashindex.Stats
	txns       []txnlock.TransactionSnapshot
	err        error
}

// refresh gathers a point-in-time snapshot off the hot path. Buffer pool
// and lock registry snapshots never fail; only the hash index's Stats
// call can surface a pool-exhaustion error on a degenerate pool.
func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		frames, evictable := m.pool.Snapshot()

		var stats hashindex.Stats
		var err error
		if m.index != nil {
			stats, err = m.index.Stats()
		}

		var txns []txnlock.TransactionSnapshot
		if m.registry != nil {
			txns = m.registry.Snapshot()
		}

		return refreshMsg{frames: frames, evictable: evictable, indexStats: stats, txns: txns, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			return m, m.refresh()
		case key.Matches(msg, keys.Tab):
			m.focus = (m.focus + 1) % 2
			m.framesTable.Blur()
			m.txnTable.Blur()
			if m.focus == 0 {
				m.framesTable.Focus()
			} else {
				m.txnTable.Focus()
			}
		case key.Matches(msg, keys.Help):
			m.showHelp = !m.showHelp
		}

	case tickMsg:
		return m, tea.Batch(tickCmd(), m.refresh())

	case refreshMsg:
		m.lastError = msg.err
		m.lastTick = time.Now()
		m.indexStats = msg.indexStats
		m.framesTable.SetRows(renderFrameRows(msg.frames, msg.evictable))
		m.txnTable.SetRows(renderTxnRows(msg.txns))
		return m, nil
	}

	var cmd tea.Cmd
	m.framesTable, cmd = m.framesTable.Update(msg)
	m.txnTable, _ = m.txnTable.Update(msg)
	return m, cmd
}

func renderFrameRows(frames []buffer.FrameSnapshot, evictable []buffer.FrameID) []table.Row {
	evictableSet := make(map[buffer.FrameID]struct{}, len(evictable))
	for _, f := range evictable {
		evictableSet[f] = struct{}{}
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].FrameID < frames[j].FrameID })

	rows := make([]table.Row, 0, len(frames))
	for _, f := range frames {
		pinState := fmt.Sprintf("%d", f.PinCount)
		if _, ok := evictableSet[f.FrameID]; !ok && f.PinCount > 0 {
			pinState = pinnedStyle.Render(pinState)
		}
		dirty := "no"
		if f.Dirty {
			dirty = dirtyStyle.Render("yes")
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", f.FrameID),
			fmt.Sprintf("%d", f.PageID),
			pinState,
			dirty,
		})
	}
	return rows
}

func renderTxnRows(txns []txnlock.TransactionSnapshot) []table.Row {
	sort.Slice(txns, func(i, j int) bool { return txns[i].ID < txns[j].ID })

	isolationName := func(l txnlock.IsolationLevel) string {
		switch l {
		case txnlock.ReadUncommitted:
			return "READ UNCOMMITTED"
		case txnlock.ReadCommitted:
			return "READ COMMITTED"
		case txnlock.RepeatableRead:
			return "REPEATABLE READ"
		default:
			return "UNKNOWN"
		}
	}

	rows := make([]table.Row, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", t.ID),
			t.State.String(),
			isolationName(t.Isolation),
		})
	}
	return rows
}

func (m Model) View() string {
	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderFramesPanel())
	sections = append(sections, m.renderTxnPanel())
	sections = append(sections, m.renderStatusBar())
	if m.showHelp {
		sections = append(sections, m.renderHelp())
	}
	return appStyle.Render(strings.Join(sections, "\n"))
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("coredb inspector")
	depth := badgeStyle.Render(fmt.Sprintf("global depth %d | buckets %d", m.indexStats.GlobalDepth, m.indexStats.BucketCount))

	header := lipgloss.JoinHorizontal(lipgloss.Left, title, "  ", depth)

	separatorWidth := m.width - 4
	if separatorWidth < 0 {
		separatorWidth = 0
	}
	sep := lipgloss.NewStyle().Foreground(bgLight).Render(strings.Repeat("─", separatorWidth))
	return header + "\n" + sep
}

func (m Model) renderFramesPanel() string {
	label := lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Render("Buffer pool frames")
	return fmt.Sprintf("%s\n%s", label, panelStyle.Render(m.framesTable.View()))
}

func (m Model) renderTxnPanel() string {
	label := lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Render("Tracked transactions")
	return fmt.Sprintf("%s\n%s", label, panelStyle.Render(m.txnTable.View()))
}

func (m Model) renderStatusBar() string {
	status := "● live"
	if m.lastError != nil {
		status = errorStyle.Render(" ⚠ " + base.TruncateString(m.lastError.Error(), 60))
	}
	timer := ""
	if !m.lastTick.IsZero() {
		timer = fmt.Sprintf(" | last refresh %s ago", time.Since(m.lastTick).Round(time.Millisecond))
	}
	content := lipgloss.NewStyle().Foreground(accentColor).Render(status) +
		lipgloss.NewStyle().Foreground(textMuted).Render(timer+" | tab to switch panel, ctrl+h for help")
	return statusBarStyle.Width(base.Max(m.width-4, 0)).Render(content)
}

func (m Model) renderHelp() string {
	helpText := m.help.FullHelpView([][]key.Binding{
		{keys.Refresh, keys.Tab, keys.Help, keys.Quit},
	})
	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Background(bgMedium).
		Render(helpText)
}

