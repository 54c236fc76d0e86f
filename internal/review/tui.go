package review

import (
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wohnblick/wohnblick/internal/filter"
	"github.com/wohnblick/wohnblick/internal/model"
)

// Lines per listing item in the list view (address + subtitle + blank separator).
const listingItemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39")) // bright blue

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240")) // dim gray

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("39"))

	inactiveHeaderStyle = headerStyle.
				Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	itemTitleStyle = lipgloss.NewStyle().
			Bold(true)

	itemSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))

	selectedItemTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")). // bright white
				Background(lipgloss.Color("24"))  // dark blue bg

	selectedItemSubtitleStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("252")).
					Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(16)

	detailValueStyle = lipgloss.NewStyle()

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	attemptOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	attemptFailStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196"))
)

type reviewModel struct {
	allListings     []model.Listing
	matchedListings []model.Listing
	attempts        map[string][]model.ApplicationAttempt // by listing key
	leftViewport    viewport.Model
	rightViewport   viewport.Model
	activePane      int // 0=left, 1=right
	leftCursor      int
	rightCursor     int
	width           int
	height          int
	ready           bool

	view           viewState
	detailListing  model.Listing
	detailViewport viewport.Model
}

func (m reviewModel) Init() tea.Cmd {
	return nil
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.detailViewport.SetContent(m.renderDetail())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m reviewModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "left", "right":
		m.activePane = 1 - m.activePane
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	// Forward other keys (pgup/pgdn/home/end) to the active viewport.
	var cmd tea.Cmd
	if m.activePane == 0 {
		m.leftViewport, cmd = m.leftViewport.Update(msg)
	} else {
		m.rightViewport, cmd = m.rightViewport.Update(msg)
	}
	return m, cmd
}

func (m reviewModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if url := m.detailListing.URL(); url != "" {
			openURL(url)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *reviewModel) moveCursor(delta int) {
	if m.activePane == 0 {
		m.leftCursor = clamp(m.leftCursor+delta, 0, max(len(m.allListings)-1, 0))
	} else {
		m.rightCursor = clamp(m.rightCursor+delta, 0, max(len(m.matchedListings)-1, 0))
	}
}

func (m *reviewModel) ensureCursorVisible() {
	var vp *viewport.Model
	var cursor int
	if m.activePane == 0 {
		vp = &m.leftViewport
		cursor = m.leftCursor
	} else {
		vp = &m.rightViewport
		cursor = m.rightCursor
	}

	cursorTop := cursor * listingItemHeight
	cursorBottom := cursorTop + listingItemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m reviewModel) openDetailView() (tea.Model, tea.Cmd) {
	listings := m.activeListings()
	cursor := m.activeCursor()
	if len(listings) == 0 {
		return m, nil
	}

	m.view = viewDetail
	m.detailListing = listings[cursor]
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.detailViewport.SetContent(m.renderDetail())
	return m, nil
}

func (m *reviewModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)

	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.leftViewport = viewport.New(paneWidth, paneHeight)
		m.rightViewport = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		m.leftViewport.Width = paneWidth
		m.leftViewport.Height = paneHeight
		m.rightViewport.Width = paneWidth
		m.rightViewport.Height = paneHeight
	}

	m.recalcContent()
}

func (m *reviewModel) recalcContent() {
	m.leftViewport.SetContent(renderListings(m.allListings, m.leftCursor, m.activePane == 0))
	m.rightViewport.SetContent(renderListings(m.matchedListings, m.rightCursor, m.activePane == 1))
}

func (m reviewModel) activeListings() []model.Listing {
	if m.activePane == 0 {
		return m.allListings
	}
	return m.matchedListings
}

func (m reviewModel) activeCursor() int {
	if m.activePane == 0 {
		return m.leftCursor
	}
	return m.rightCursor
}

func (m reviewModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.view == viewDetail {
		return m.viewDetail()
	}

	return m.viewList()
}

func (m reviewModel) viewList() string {
	paneWidth := m.leftViewport.Width

	leftHeader := fmt.Sprintf(" All Listings (%d)", len(m.allListings))
	rightHeader := fmt.Sprintf(" Matched Listings (%d)", len(m.matchedListings))

	var leftHeaderRendered, rightHeaderRendered string
	var leftBorder, rightBorder lipgloss.Style

	if m.activePane == 0 {
		leftHeaderRendered = activeHeaderStyle.Render(leftHeader)
		rightHeaderRendered = inactiveHeaderStyle.Render(rightHeader)
		leftBorder = activeBorderStyle.Width(paneWidth)
		rightBorder = inactiveBorderStyle.Width(paneWidth)
	} else {
		leftHeaderRendered = inactiveHeaderStyle.Render(leftHeader)
		rightHeaderRendered = activeHeaderStyle.Render(rightHeader)
		leftBorder = inactiveBorderStyle.Width(paneWidth)
		rightBorder = activeBorderStyle.Width(paneWidth)
	}

	leftPane := leftBorder.Render(m.leftViewport.View())
	rightPane := rightBorder.Render(m.rightViewport.View())

	headerRow := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(paneWidth+2).Render(leftHeaderRendered),
		" ",
		lipgloss.NewStyle().Width(paneWidth+2).Render(rightHeaderRendered),
	)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, " ", rightPane)

	filteredCount := len(m.allListings) - len(m.matchedListings)
	statusText := fmt.Sprintf(" %d total | %d matched | %d filtered out    ←/→/Tab switch  ↑/↓ cursor  Enter detail  q quit",
		len(m.allListings), len(m.matchedListings), filteredCount)
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return headerRow + "\n" + panes + "\n" + statusBar
}

func (m reviewModel) viewDetail() string {
	title := detailTitleStyle.Render("Listing Details")

	border := activeBorderStyle.Width(m.width - 2)
	content := border.Render(m.detailViewport.View())

	statusText := " o open URL  esc/backspace back  ↑/↓ scroll  q quit"
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func (m reviewModel) renderDetail() string {
	l := m.detailListing
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Address", l.Address)
	addField("Borough", l.Borough)
	addField("Source", l.Source)
	if l.PriceTotal != nil {
		addField("Warm Rent", fmt.Sprintf("%.2f €", *l.PriceTotal))
	}
	if l.PriceCold != nil {
		addField("Cold Rent", fmt.Sprintf("%.2f €", *l.PriceCold))
	}
	if l.SizeSqm != nil {
		addField("Size", fmt.Sprintf("%.1f m²", *l.SizeSqm))
	}
	if l.Rooms != nil {
		addField("Rooms", fmt.Sprintf("%g", *l.Rooms))
	}
	if l.WBS != model.WBSUnknown {
		addField("WBS", l.WBS.String())
	}

	b.WriteByte('\n')
	addField("First Seen", l.FirstSeen.Format("2006-01-02 15:04"))
	addField("Last Seen", l.LastSeen.Format("2006-01-02 15:04"))

	b.WriteByte('\n')
	addField("URL", l.URL())

	if attempts := m.attempts[l.Key()]; len(attempts) > 0 {
		b.WriteByte('\n')
		b.WriteString(detailLabelStyle.Render("Applications"))
		b.WriteByte('\n')
		for _, a := range attempts {
			st := attemptFailStyle
			if a.Status == model.AttemptSubmitted {
				st = attemptOKStyle
			}
			line := fmt.Sprintf("  %s: %s (attempt %d)", a.Provider, a.Status, a.AttemptCount)
			if a.LastAttemptAt != nil {
				line += " at " + a.LastAttemptAt.Format("2006-01-02 15:04")
			}
			b.WriteString(st.Render(line))
			b.WriteByte('\n')
			if a.LastError != "" && a.Status != model.AttemptSubmitted {
				b.WriteString(itemSubtitleStyle.Render("    "+a.LastError) + "\n")
			}
		}
	}

	return b.String()
}

func renderListings(listings []model.Listing, cursor int, isActive bool) string {
	if len(listings) == 0 {
		return "  (no listings)"
	}

	var b strings.Builder
	for i, l := range listings {
		isSelected := isActive && i == cursor

		titleSt := itemTitleStyle
		subtitleSt := itemSubtitleStyle
		prefix := "  "
		if isSelected {
			titleSt = selectedItemTitleStyle
			subtitleSt = selectedItemSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(l.Address))
		b.WriteByte('\n')

		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(subtitle(l)))
		b.WriteByte('\n')

		if i < len(listings)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func subtitle(l model.Listing) string {
	parts := []string{l.Source}
	if l.Rooms != nil {
		parts = append(parts, fmt.Sprintf("%g Zi", *l.Rooms))
	}
	if l.SizeSqm != nil {
		parts = append(parts, fmt.Sprintf("%.0f m²", *l.SizeSqm))
	}
	if price := l.PriceTotal; price != nil {
		parts = append(parts, fmt.Sprintf("%.0f € warm", *price))
	} else if l.PriceCold != nil {
		parts = append(parts, fmt.Sprintf("%.0f € kalt", *l.PriceCold))
	}
	parts = append(parts, l.FirstSeen.Format("2006-01-02"))
	return strings.Join(parts, " · ")
}

func sortListingsByFirstSeen(listings []model.Listing) {
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].FirstSeen.After(listings[j].FirstSeen)
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// knownProviders are the application providers whose history the TUI shows.
var knownProviders = []string{"wbm", "berlinovo"}

// Run loads all stored listings, splits them by the filter rules, and launches
// the interactive split-pane review TUI.
func Run(store model.ListingStore, rules filter.Rules) error {
	listings, err := store.LoadAll()
	if err != nil {
		return fmt.Errorf("load listings: %w", err)
	}
	sortListingsByFirstSeen(listings)

	var matched []model.Listing
	attempts := make(map[string][]model.ApplicationAttempt)
	for _, l := range listings {
		if rules.Accept(l) {
			matched = append(matched, l)
		}
		for _, provider := range knownProviders {
			a, err := store.AttemptFor(l.Key(), provider)
			if err != nil {
				return fmt.Errorf("load attempts: %w", err)
			}
			if a != nil {
				attempts[l.Key()] = append(attempts[l.Key()], *a)
			}
		}
	}

	m := reviewModel{
		allListings:     listings,
		matchedListings: matched,
		attempts:        attempts,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
