package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/leadsync/internal/display"
	"github.com/desertthunder/leadsync/internal/formatter"
	"github.com/desertthunder/leadsync/internal/models"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ListView ViewState = iota
	ConfirmClearView
	FilterView
)

const defaultRefresh = 2 * time.Second

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	client   *display.Client
	interval time.Duration
	view     ViewState
	width    int
	height   int
	records  list.Model
	state    display.State
	filter   display.Filter
	shown    int
	input    textinput.Model
	bar      progress.Model
	percent  int
	running  bool
	status   string
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a TUI over client. The snapshot is re-read every interval; zero means two seconds.
//
// A negative interval disables the model's own tick, for when [display.Client.Run] drives refreshes and the caller
// forwards each state with [StateUpdated].
func NewModel(ctx context.Context, client *display.Client, interval time.Duration) *Model {
	if interval == 0 {
		interval = defaultRefresh
	}

	records := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	records.SetShowHelp(false)
	records.SetShowTitle(false)
	records.SetStatusBarItemName("record", "records")
	records.KeyMap.Quit.SetEnabled(false)
	records.KeyMap.ShowFullHelp.SetEnabled(false)

	input := textinput.New()
	input.Placeholder = `fansCount > 10000 && phone != ""`
	input.Prompt = "expr> "

	return &Model{
		ctx:      ctx,
		client:   client,
		interval: interval,
		view:     ListView,
		records:  records,
		state:    client.State(),
		input:    input,
		bar:      progress.New(progress.WithDefaultGradient()),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init reads the snapshot and starts the refresh tick and the progress listener.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick(), m.waitForProgress())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.records.SetSize(msg.Width-4, max(msg.Height-10, 3))
		m.bar.Width = max(msg.Width-20, 10)
		m.help.Width = msg.Width
		return m, nil

	case tea.FocusMsg:
		return m, m.refresh()

	case tea.KeyMsg:
		switch m.view {
		case ConfirmClearView:
			return m.handleConfirmKeys(msg)
		case FilterView:
			return m.handleFilterKeys(msg)
		default:
			return m.handleListKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.records, cmd = m.records.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTick:
		return m, tea.Batch(m.refresh(), m.tick())

	case MsgStateLoaded:
		res := msg.data.(stateResult)
		return m, m.setState(res.state)

	case MsgCommandDone:
		res := msg.data.(stateResult)
		if res.label == "collect" {
			m.running = false
		}
		m.err = res.err
		if res.err == nil {
			m.status = res.label + " done"
		}
		return m, m.setState(res.state)

	case MsgExported:
		res := msg.data.(exportResult)
		m.err = res.err
		if res.err == nil {
			m.status = fmt.Sprintf("exported %s (%s)", strings.ToUpper(string(res.format)), res.id)
		}
		return m, nil

	case MsgProgress:
		m.percent = msg.data.(int)
		if m.percent >= 100 {
			m.running = false
		}
		return m, m.waitForProgress()
	}
	return m, nil
}

// setState shows st through the current filter.
func (m *Model) setState(st display.State) tea.Cmd {
	if st.Version != m.state.Version {
		m.percent = 0
	}
	m.state = st
	users, err := display.Apply(st.Snapshot.SavedUserList, m.filter)
	if err != nil {
		m.err = err
		users = st.Snapshot.SavedUserList
	}
	m.shown = len(users)
	return m.records.SetItems(recordItems(users))
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.records.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.records, cmd = m.records.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keys.version):
		next := models.VersionPro
		if m.state.Version == models.VersionPro {
			next = models.VersionBasic
		}
		m.status = "switching to " + next.Label()
		return m, m.run("version", func() (display.State, error) { return m.client.SetVersion(m.ctx, next) })
	case key.Matches(msg, m.keys.collect):
		if m.running {
			m.status = "collection already running"
			return m, nil
		}
		m.running = true
		m.percent = 0
		m.status = "collecting…"
		return m, m.run("collect", func() (display.State, error) { return m.client.Collect(m.ctx) })
	case key.Matches(msg, m.keys.stop):
		m.status = "stopping…"
		return m, m.run("stop", func() (display.State, error) { return m.client.Stop(m.ctx) })
	case key.Matches(msg, m.keys.clear):
		m.view = ConfirmClearView
		return m, nil
	case key.Matches(msg, m.keys.exportTXT):
		return m, m.export(formatter.FormatTXT)
	case key.Matches(msg, m.keys.exportCSV):
		return m, m.export(formatter.FormatCSV)
	case key.Matches(msg, m.keys.phoneOnly):
		m.filter.PhoneOnly = !m.filter.PhoneOnly
		return m, m.setState(m.state)
	case key.Matches(msg, m.keys.filter):
		m.view = FilterView
		m.input.SetValue(m.filter.Expr)
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.records, cmd = m.records.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = ListView
		m.status = "clearing " + m.state.Version.Label()
		return m, m.run("clear", func() (display.State, error) { return m.client.Clear(m.ctx) })
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = ListView
	}
	return m, nil
}

func (m *Model) handleFilterKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.enter):
		f := m.filter
		f.Expr = strings.TrimSpace(m.input.Value())
		if _, err := f.Compile(); err != nil {
			m.err = err
			return m, nil
		}
		m.filter = f
		m.err = nil
		m.view = ListView
		m.input.Blur()
		return m, m.setState(m.state)
	case key.Matches(msg, m.keys.back):
		m.view = ListView
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		st, err := m.client.Refresh(m.ctx)
		return stateLoadedMsg(st, err)
	}
}

func (m *Model) tick() tea.Cmd {
	if m.interval < 0 {
		return nil
	}
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg() })
}

func (m *Model) run(label string, fn func() (display.State, error)) tea.Cmd {
	return func() tea.Msg {
		st, err := fn()
		return commandDoneMsg(label, st, err)
	}
}

func (m *Model) export(f formatter.Format) tea.Cmd {
	m.status = "exporting " + strings.ToUpper(string(f))
	opts := display.ExportOptions{Format: f, Filter: m.filter}
	if f == formatter.FormatCSV {
		opts.CSV = formatter.CSVOptions{Headers: true, Timestamp: true}
	}
	return func() tea.Msg {
		id, err := m.client.Export(m.ctx, opts)
		return exportedMsg(f, id, err)
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		select {
		case p := <-m.client.Progress():
			return progressMsg(p)
		case <-m.ctx.Done():
			return nil
		}
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.view {
	case ConfirmClearView:
		b.WriteString(m.renderConfirm())
	case FilterView:
		b.WriteString(m.renderFilter())
	default:
		b.WriteString(m.records.View())
		b.WriteString("\n")
		b.WriteString(m.renderStatus())
		b.WriteString("\n")
		b.WriteString(m.help.View(m.keys))
	}
	return b.String()
}

func (m *Model) renderHeader() string {
	st := m.state
	title := styles.badge(st.Version).Render("LeadSync · " + st.Version.Label())
	stats := fmt.Sprintf("共 %d 条 · 手机号 %d · 微信 %d", st.Stats.Total, st.Stats.WithPhone, st.Stats.WithWechat)
	if m.shown != st.Stats.Total {
		stats += fmt.Sprintf(" · 显示 %d", m.shown)
	}

	var flags []string
	if m.filter.PhoneOnly {
		flags = append(flags, "phone only")
	}
	if m.filter.Expr != "" {
		flags = append(flags, "expr: "+m.filter.Expr)
	}

	lines := []string{title + "  " + stats}
	if len(flags) > 0 {
		lines = append(lines, styles.help.Render(strings.Join(flags, " • ")))
	}
	if st.Stale {
		lines = append(lines, styles.warn.Render("dataset may be stale: "+errString(st.Err)))
	}
	lines = append(lines, m.bar.ViewAs(float64(m.percent)/100))
	return strings.Join(lines, "\n")
}

func (m *Model) renderStatus() string {
	if m.err != nil {
		return styles.err.Render("Error: " + m.err.Error())
	}
	if m.status != "" {
		return styles.ok.Render(m.status)
	}
	return ""
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Clear all %d records in %s?", m.state.Stats.Total, m.state.Version.Label()))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s", title, helpView)
}

func (m *Model) renderFilter() string {
	title := styles.title.Render("Filter expression")
	fields := styles.help.Render("fields: username douyinId phone wechat fans likes fansCount likesCount companyName verified timestamp")
	out := fmt.Sprintf("%s\n%s\n%s", title, m.input.View(), fields)
	if m.err != nil {
		out += "\n" + styles.err.Render(m.err.Error())
	}
	return out + "\n" + m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.back})
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
