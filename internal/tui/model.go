package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// ---------- messages sent from the chat goroutine via program.Send() ----------

type readInputMsg struct{}

type inputResult struct {
	text string
	err  error
}

type userMsg struct{ text string }
type thinkingStartMsg struct{}
type textDeltaMsg struct{ delta string }
type textDoneMsg struct{ fullText string }
type systemMsg struct{ text string }
type errorMsg struct{ text string }
type tokensMsg struct{ n int }
type titleMsg struct{ title string }
type chatDoneMsg struct{ err error }

// TUIConfig carries version/provider info for the welcome page and status bar.
type TUIConfig struct {
	Version     string
	Provider    string
	Model       string
	Title       string // active conversation
	ShowWelcome bool
}

// ---------- styles ----------

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	statusModelStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("2")).
				Bold(true)

	statusBarBgStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235"))

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	welcomeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("8")).
				Padding(0, 1)

	welcomeTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("2")).
				Bold(true)

	welcomeLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8"))

	welcomeValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	welcomeHintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))
)

var dotSpinner = spinner.Spinner{
	Frames: []string{"·", "✢", "✳", "✶", "✻", "✽", "✻", "✶", "✳", "✢"},
	FPS:    120 * time.Millisecond,
}

// ---------- Model ----------

// Model is the bubbletea model for the chat screen: scrollback is printed
// above, the live reply, input line and status bar are redrawn below.
type Model struct {
	textinput   textinput.Model
	spinner     spinner.Model
	width       int
	height      int
	liveContent *strings.Builder
	streaming   bool
	thinking    bool
	inputMode   bool

	menu    []SlashMenuItem // filtered slash commands, nil when closed
	menuSel int

	inputCh chan inputResult

	noiseDropCount int
	quitting       bool

	tokens int
	cfg    TUIConfig

	cancelTurnFn func() bool

	mdRenderer      *glamour.TermRenderer
	mdRendererWidth int
}

// NewModel creates the initial bubbletea model.
func NewModel(inputCh chan inputResult, cfg TUIConfig) Model {
	ti := textinput.New()
	ti.Prompt = "❯ "
	ti.CharLimit = 8192

	sp := spinner.New()
	sp.Spinner = dotSpinner
	sp.Style = spinnerStyle

	return Model{
		textinput:   ti,
		spinner:     sp,
		liveContent: &strings.Builder{},
		inputCh:     inputCh,
		cfg:         cfg,
	}
}

func (m Model) Init() tea.Cmd {
	if m.cfg.ShowWelcome {
		return tea.Println(renderWelcome(m.cfg))
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textinput.Width = m.width - 4

	case spinner.TickMsg:
		if m.thinking {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		return m.handleKey(msg)

	// ---------- messages from the chat goroutine ----------

	case readInputMsg:
		m.inputMode = true
		m.textinput.Focus()

	case userMsg:
		cmds = append(cmds, tea.Println(userStyle.Render("You: ")+msg.text))

	case thinkingStartMsg:
		m.thinking = true
		m.streaming = false
		cmds = append(cmds, m.spinner.Tick)

	case textDeltaMsg:
		m.thinking = false
		m.streaming = true
		m.liveContent.WriteString(msg.delta)

	case textDoneMsg:
		m.thinking = false
		m.streaming = false
		m.liveContent.Reset()
		// An empty reply means the turn was discarded.
		if strings.TrimSpace(msg.fullText) != "" {
			cmds = append(cmds, tea.Println(m.renderMarkdown(msg.fullText)))
		}

	case systemMsg:
		cmds = append(cmds, tea.Println(systemStyle.Render(msg.text)))

	case errorMsg:
		cmds = append(cmds, tea.Println(errorStyle.Render("Error: "+msg.text)))

	case tokensMsg:
		m.tokens = msg.n

	case titleMsg:
		m.cfg.Title = msg.title

	case chatDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := msg.String()
	if isTerminalNoiseKey(s) {
		m.noiseDropCount = 4
		return m, nil
	}
	if m.noiseDropCount > 0 && len(s) <= 2 {
		m.noiseDropCount--
		return m, nil
	}

	switch s {
	case "ctrl+c":
		if m.inputMode {
			m.inputCh <- inputResult{err: fmt.Errorf("interrupted")}
			m.inputMode = false
			m.textinput.Blur()
		}
		m.cancelTurn()
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.menu != nil {
			m.menu = nil
			return m, nil
		}
		if (m.thinking || m.streaming) && m.cancelTurn() {
			m.thinking = false
			m.streaming = false
			m.liveContent.Reset()
		}
		return m, nil

	case "up", "down":
		if m.menu != nil {
			if s == "up" && m.menuSel > 0 {
				m.menuSel--
			}
			if s == "down" && m.menuSel < len(m.menu)-1 {
				m.menuSel++
			}
		}
		return m, nil

	case "tab":
		m.completeMenu()
		return m, nil

	case "enter":
		if !m.inputMode {
			return m, nil
		}
		if m.menu != nil && m.menuSel < len(m.menu) && m.textinput.Value() != m.menu[m.menuSel].Name {
			m.completeMenu()
			return m, nil
		}
		text := strings.TrimSpace(m.textinput.Value())
		m.textinput.SetValue("")
		m.menu = nil
		m.inputCh <- inputResult{text: text}
		m.inputMode = false
		m.textinput.Blur()
		return m, nil
	}

	if !m.inputMode || isControlKeyMsg(s) {
		return m, nil
	}
	var cmd tea.Cmd
	m.textinput, cmd = m.textinput.Update(msg)
	m.updateMenu()
	return m, cmd
}

// updateMenu opens the slash menu while the input is a bare command prefix.
func (m *Model) updateMenu() {
	v := m.textinput.Value()
	if !strings.HasPrefix(v, "/") || strings.Contains(v, " ") {
		m.menu = nil
		return
	}
	m.menu = filterSlashItems(BuiltinSlashCommands(), v)
	if len(m.menu) == 0 {
		m.menu = nil
	}
	if m.menuSel >= len(m.menu) {
		m.menuSel = 0
	}
}

func (m *Model) completeMenu() {
	if m.menu == nil || m.menuSel >= len(m.menu) {
		return
	}
	m.textinput.SetValue(m.menu[m.menuSel].Name)
	m.textinput.CursorEnd()
	m.menu = nil
	m.menuSel = 0
}

func (m *Model) cancelTurn() bool {
	if m.cancelTurnFn == nil {
		return false
	}
	return m.cancelTurnFn()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var parts []string
	switch {
	case m.thinking:
		parts = append(parts, m.spinner.View()+hintStyle.Render(" Thinking… (esc to cancel)"))
	case m.streaming:
		parts = append(parts, m.liveContent.String())
	}

	if m.menu != nil {
		parts = append(parts, renderSlashMenu(m.menu, m.menuSel, m.width))
	}

	if m.inputMode {
		parts = append(parts, m.textinput.View())
	} else {
		parts = append(parts, systemStyle.Render("❯"))
	}
	parts = append(parts, m.renderStatusBar())
	return strings.Join(parts, "\n")
}

// renderStatusBar renders the bottom separator + model/title/tokens bar.
func (m *Model) renderStatusBar() string {
	modelName := m.cfg.Model
	if modelName == "" {
		modelName = "unknown"
	}
	status := statusModelStyle.Render(" " + modelName)
	if m.cfg.Title != "" {
		status += statusBarStyle.Render(" │ " + truncateWidth(m.cfg.Title, 40))
	}
	status += statusBarStyle.Render(fmt.Sprintf(" │ tokens: %d", m.tokens))
	width := max(m.width, 0)
	return separatorStyle.Width(width).Render(strings.Repeat("─", width)) + "\n" +
		statusBarBgStyle.Width(width).Render(status)
}

// ---------- markdown rendering ----------

func (m *Model) getMarkdownRenderer() *glamour.TermRenderer {
	width := m.width
	if width <= 0 {
		width = 80
	}
	wrapWidth := width - 4
	if m.mdRenderer != nil && m.mdRendererWidth == wrapWidth {
		return m.mdRenderer
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return nil
	}
	m.mdRenderer = r
	m.mdRendererWidth = wrapWidth
	return r
}

func (m *Model) renderMarkdown(text string) string {
	r := m.getMarkdownRenderer()
	if r == nil {
		return text
	}
	rendered, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

// ---------- welcome page ----------

func renderWelcome(cfg TUIConfig) string {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	title := cfg.Title
	if title == "" {
		title = "New Chat"
	}

	lines := []string{
		welcomeLabelStyle.Render("Provider:     ") + welcomeValueStyle.Render(cfg.Provider),
		welcomeLabelStyle.Render("Model:        ") + welcomeValueStyle.Render(cfg.Model),
		welcomeLabelStyle.Render("Conversation: ") + welcomeValueStyle.Render(title),
		"",
		welcomeHintStyle.Render("/help commands  /chats history  tab completes  esc cancels a reply"),
	}
	return welcomeTitleStyle.Render("parley "+version) + "\n" +
		welcomeBorderStyle.Render(strings.Join(lines, "\n"))
}

// truncateWidth cuts s to at most n display cells.
func truncateWidth(s string, n int) string {
	if lipgloss.Width(s) <= n {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > n {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}

// ---------- key event helpers ----------

// isTerminalNoiseKey reports escape-sequence fragments (color query replies,
// mouse reports) that some terminals deliver as key presses.
func isTerminalNoiseKey(s string) bool {
	if strings.Contains(s, ";rgb:") || strings.HasPrefix(s, "]") || strings.HasPrefix(s, "alt+]") {
		return true
	}
	if (strings.HasSuffix(s, "M") || strings.HasSuffix(s, "m")) && strings.Contains(s, ";") {
		return true
	}
	if strings.HasPrefix(s, "[<") || strings.HasPrefix(s, "alt+[<") {
		return true
	}
	if strings.HasPrefix(s, "[?") || strings.HasPrefix(s, "alt+[?") {
		return true
	}
	return len(s) > 1 && s[0] == '[' && s[1] >= '0' && s[1] <= '9'
}

func isControlKeyMsg(s string) bool {
	for _, r := range s {
		if r == '\x1b' || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			return true
		}
	}
	return false
}
