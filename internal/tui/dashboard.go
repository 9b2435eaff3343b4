// Package tui is the terminal dashboard over the domain list.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"domainflow/internal/domain"
	"domainflow/internal/engine"
	"domainflow/internal/listing"
	"domainflow/internal/prefs"
	"domainflow/internal/progress"
)

const barWidth = 20

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))
	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#3C3C3C"))
	closedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Strikethrough(true)
	pinStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F4BF4F"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Search     key.Binding
	Sort       key.Binding
	ShowClosed key.Binding
	Pin        key.Binding
	Close      key.Binding
	Reload     key.Binding
	Quit       key.Binding
}

var keys = keyMap{
	Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "su")),
	Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "giù")),
	Search:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "cerca")),
	Sort:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "ordina")),
	ShowClosed: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "chiusi")),
	Pin:        key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "fissa")),
	Close:      key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "chiudi/riapri")),
	Reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "ricarica")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "esci")),
}

func (k keyMap) help() string {
	parts := make([]string, 0, 9)
	for _, b := range []key.Binding{k.Up, k.Down, k.Search, k.Sort, k.ShowClosed, k.Pin, k.Close, k.Reload, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

type domainsLoadedMsg struct {
	items []domain.Domain
}

type domainUpdatedMsg struct {
	item domain.Domain
}

type prefsSavedMsg struct {
	prefs prefs.Preferences
}

type errMsg struct {
	err error
}

// Model is the dashboard state. The full list is kept and the visible rows
// are recomposed on every change of query, sort or status filter.
type Model struct {
	ctx    context.Context
	engine engine.Engine
	prefs  prefs.Store

	all   []domain.Domain
	rows  []domain.Domain
	stats progress.Stats

	search     textinput.Model
	searching  bool
	query      string
	sortBy     string
	showClosed bool

	cursor  int
	loading bool
	err     error
	width   int
	height  int
}

// NewModel builds the dashboard from stored preferences.
func NewModel(ctx context.Context, e engine.Engine, p prefs.Preferences) Model {
	ti := textinput.New()
	ti.Placeholder = "nome, url o descrizione"
	ti.Prompt = "cerca: "
	ti.CharLimit = 120
	ti.SetValue(p.SearchQuery)
	return Model{
		ctx:        ctx,
		engine:     e,
		prefs:      e.Preferences(),
		search:     ti,
		query:      p.SearchQuery,
		sortBy:     p.SortBy,
		showClosed: p.ShowClosedDomains,
		loading:    true,
	}
}

// Run opens the dashboard and blocks until the user quits or ctx is done.
func Run(ctx context.Context, e engine.Engine) error {
	p, err := e.Preferences().Load(ctx)
	if err != nil {
		return err
	}
	program := tea.NewProgram(NewModel(ctx, e, p), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.loadDomains()
}

func (m Model) loadDomains() tea.Cmd {
	return func() tea.Msg {
		items, err := m.engine.ListDomains(m.ctx, true)
		if err != nil {
			return errMsg{err: err}
		}
		return domainsLoadedMsg{items: items}
	}
}

func (m Model) savePrefs(patch prefs.Patch) tea.Cmd {
	return func() tea.Msg {
		saved, err := m.prefs.Save(m.ctx, patch)
		if err != nil {
			return errMsg{err: err}
		}
		return prefsSavedMsg{prefs: saved}
	}
}

func (m Model) domainAction(fn func(engine.Engine, context.Context, string) (domain.Domain, error), id string) tea.Cmd {
	return func() tea.Msg {
		d, err := fn(m.engine, m.ctx, id)
		if err != nil {
			return errMsg{err: err}
		}
		return domainUpdatedMsg{item: d}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case domainsLoadedMsg:
		m.loading = false
		m.err = nil
		m.all = msg.items
		m.recompose()
		return m, nil
	case domainUpdatedMsg:
		m.err = nil
		// pin order and progress depend on the other rows, so reload
		return m, m.loadDomains()
	case prefsSavedMsg:
		return m, nil
	case errMsg:
		m.loading = false
		m.err = msg.err
		return m, nil
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		m.query = m.search.Value()
		m.recompose()
		q := m.query
		return m, m.savePrefs(prefs.Patch{SearchQuery: &q})
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		m.search.SetValue(m.query)
		m.recompose()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.recomposeWith(m.search.Value())
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Search):
		m.searching = true
		return m, m.search.Focus()
	case key.Matches(msg, keys.Sort):
		m.sortBy = nextSortKey(m.sortBy)
		m.recompose()
		s := m.sortBy
		return m, m.savePrefs(prefs.Patch{SortBy: &s})
	case key.Matches(msg, keys.ShowClosed):
		m.showClosed = !m.showClosed
		m.recompose()
		v := m.showClosed
		return m, m.savePrefs(prefs.Patch{ShowClosedDomains: &v})
	case key.Matches(msg, keys.Pin):
		d, ok := m.selected()
		if !ok {
			return m, nil
		}
		if d.Pinned {
			return m, m.domainAction(engine.Engine.UnpinDomain, d.ID)
		}
		return m, m.domainAction(engine.Engine.PinDomain, d.ID)
	case key.Matches(msg, keys.Close):
		d, ok := m.selected()
		if !ok {
			return m, nil
		}
		if d.Status == domain.StatusClosed {
			return m, m.domainAction(engine.Engine.ReopenDomain, d.ID)
		}
		return m, m.domainAction(engine.Engine.CloseDomain, d.ID)
	case key.Matches(msg, keys.Reload):
		m.loading = true
		return m, m.loadDomains()
	}
	return m, nil
}

func nextSortKey(current string) string {
	for i, k := range listing.DomainSortKeys {
		if k == current {
			return listing.DomainSortKeys[(i+1)%len(listing.DomainSortKeys)]
		}
	}
	return listing.DomainSortKeys[0]
}

func (m *Model) recompose() {
	m.recomposeWith(m.query)
}

func (m *Model) recomposeWith(query string) {
	m.rows = listing.ComposeDomains(m.all, query, m.showClosed, m.sortBy, m.engine.Collator)
	m.stats = progress.Summarize(m.rows)
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) selected() (domain.Domain, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return domain.Domain{}, false
	}
	return m.rows[m.cursor], true
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("domainflow"))
	b.WriteString("\n")
	b.WriteString(statsStyle.Render(fmt.Sprintf("%d domini • %d completati • %d in corso • %d da iniziare • ordine: %s • chiusi: %s",
		m.stats.Total, m.stats.Completed, m.stats.InProgress, m.stats.NotStarted, m.sortBy, onOff(m.showClosed))))
	b.WriteString("\n")
	if m.searching {
		b.WriteString(m.search.View())
		b.WriteString("\n")
	} else if m.query != "" {
		b.WriteString(statsStyle.Render("cerca: " + m.query))
		b.WriteString("\n")
	}

	var body string
	switch {
	case m.loading && m.all == nil:
		body = "Caricamento..."
	case len(m.rows) == 0:
		body = "Nessun dominio"
	default:
		lines := make([]string, 0, len(m.rows))
		for i, d := range m.rows {
			lines = append(lines, m.renderRow(i, d))
		}
		body = strings.Join(lines, "\n")
	}
	box := boxStyle
	if m.width > 4 {
		box = box.Width(m.width - 4)
	}
	b.WriteString(box.Render(body))
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render("errore: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(keys.help()))
	return b.String()
}

func (m Model) renderRow(i int, d domain.Domain) string {
	marker := "  "
	if d.Pinned {
		marker = pinStyle.Render("★ ")
	}
	line := fmt.Sprintf("%-28s %-32s %s %3d%% (%d/%d)",
		truncate(d.Name, 28), truncate(d.URL, 32), progressBar(d.Progress), d.Progress, d.CompletedTasks, d.TotalTasks)
	if d.Status == domain.StatusClosed {
		line = closedStyle.Render(line)
	}
	if i == m.cursor {
		line = selectedStyle.Render(line)
	}
	return marker + line
}

func progressBar(pct int) string {
	filled := pct * barWidth / 100
	if filled < 0 {
		filled = 0
	}
	if filled > barWidth {
		filled = barWidth
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func onOff(v bool) string {
	if v {
		return "sì"
	}
	return "no"
}
