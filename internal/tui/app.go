package tui

import (
	"fmt"
	"strings"

	"shelf-cli/internal/app"
	"shelf-cli/internal/docs"
	"shelf-cli/internal/library"
	"shelf-cli/internal/model"
	"shelf-cli/internal/store"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const (
	fieldUsername = iota
	fieldPassword
)

type appModel struct {
	ctrl    *app.Controller
	notices *Notices

	width  int
	height int

	view view
	// back is the view the help pane returns to.
	back view

	username   textinput.Model
	password   textinput.Model
	focus      int
	submitting bool
	// notice blocks input until dismissed.
	notice string

	docs      list.Model
	search    textinput.Model
	searching bool
	loading   bool
	spinner   spinner.Model
	flash     string

	info        *model.DocumentInfo
	infoErr     string
	infoLoading bool

	// highlight is applied once the list first contains it.
	highlight string
}

func newAppModel(c *app.Controller, notices *Notices) appModel {
	if notices == nil {
		notices = NewNotices()
	}
	m := appModel{
		ctrl:    c,
		notices: notices,
		view:    viewLogin,
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot)),
	}

	m.username = textinput.New()
	m.username.Placeholder = "Username"
	m.username.Prompt = "Username: "
	m.password = textinput.New()
	m.password.Placeholder = "Password"
	m.password.Prompt = "Password: "
	m.password.EchoMode = textinput.EchoPassword
	m.password.EchoCharacter = '•'
	m.focusField(fieldUsername)

	m.search = textinput.New()
	m.search.Placeholder = "Search PDFs..."
	m.search.Prompt = "/ "
	m.search.TextStyle = styleInput()

	l := list.New(nil, newDocDelegate(), 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	m.docs = l

	if c.Session.Authenticated() {
		m.view = viewLibrary
		m.loading = true
	}
	return m
}

func (m appModel) Init() tea.Cmd {
	if m.view == viewLibrary {
		return tea.Batch(loadListCmd(m.ctrl), m.spinner.Tick)
	}
	return textinput.Blink
}

func (m *appModel) focusField(i int) {
	m.focus = i
	if i == fieldUsername {
		m.username.Focus()
		m.password.Blur()
		return
	}
	m.password.Focus()
	m.username.Blur()
}

func (m *appModel) resize() {
	// header + search + footer + flash
	h := m.height - 5
	if h < 3 {
		h = 3
	}
	m.docs.SetSize(m.width, h)
	m.search.Width = m.width - 4
}

// currentName is the highlighted document in the list.
func (m appModel) currentName() (string, bool) {
	it, ok := m.docs.SelectedItem().(docItem)
	if !ok {
		return "", false
	}
	return it.name, true
}

// restore applies the state saved by the previous session.
func (m *appModel) restore(st *store.TUIState) {
	if st == nil {
		return
	}
	m.search.SetValue(st.Search)
	m.highlight = st.Highlighted
}

// state is what the next session restores.
func (m appModel) state() *store.TUIState {
	name, _ := m.currentName()
	return &store.TUIState{Search: m.search.Value(), Highlighted: name}
}

// refreshDocs rebuilds the list from the library, keeping the highlighted name.
func (m *appModel) refreshDocs() {
	prev, _ := m.currentName()
	if m.highlight != "" {
		prev = m.highlight
	}
	snap := m.ctrl.Library.Snapshot()
	names := library.Filter(snap.Documents, m.search.Value())

	items := make([]list.Item, 0, len(names))
	keep := -1
	for i, n := range names {
		it := docItem{name: n, thumb: thumbMissing}
		if h, ok := snap.Thumbnails[n]; ok {
			it.thumb = thumbReady
			it.detail = fmt.Sprintf("%s %s", h.ContentType, humanize.Bytes(uint64(h.Size)))
		} else if m.loading && snap.State != library.StateThumbnails {
			it.thumb = thumbPending
		}
		if n == prev {
			keep = i
		}
		items = append(items, it)
	}
	m.docs.SetItems(items)
	if keep >= 0 {
		m.highlight = ""
		m.docs.Select(keep)
	} else if len(items) > 0 {
		m.docs.Select(0)
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case spinner.TickMsg:
		if !m.loading && !m.submitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loginDoneMsg:
		m.submitting = false
		m.password.SetValue("")
		if len(msg.notices) > 0 {
			m.notice = strings.Join(msg.notices, "\n")
		}
		if !msg.ok {
			m.focusField(fieldPassword)
			return m, nil
		}
		m.view = viewLibrary
		m.loading = true
		m.refreshDocs()
		return m, tea.Batch(loadListCmd(m.ctrl), m.spinner.Tick)

	case listLoadedMsg:
		if m.view == viewLogin {
			return m, nil
		}
		m.flash = ""
		if m.ctrl.Library.State() != library.StateListed {
			m.loading = false
			m.refreshDocs()
			m.highlight = ""
			if m.ctrl.Library.LastError() != nil {
				m.flash = "Could not load the library (r to retry)"
			}
			return m, nil
		}
		m.refreshDocs()
		return m, loadThumbnailsCmd(m.ctrl, msg.names)

	case thumbnailsLoadedMsg:
		if m.view == viewLogin {
			return m, nil
		}
		m.loading = false
		m.refreshDocs()
		m.highlight = ""
		return m, nil

	case logoutDoneMsg:
		m.view = viewLogin
		m.loading = false
		m.searching = false
		m.search.SetValue("")
		m.search.Blur()
		m.docs.SetItems(nil)
		m.info = nil
		m.flash = ""
		m.focusField(fieldUsername)
		return m, textinput.Blink

	case openDoneMsg:
		if msg.err != nil {
			m.flash = "Open failed: " + msg.err.Error()
		} else {
			m.flash = "Opened " + msg.name
		}
		return m, nil

	case infoDoneMsg:
		if cur, ok := m.ctrl.Viewer.Current(); !ok || cur != msg.name {
			return m, nil
		}
		m.infoLoading = false
		if msg.err != nil {
			m.infoErr = msg.err.Error()
			return m, nil
		}
		info := msg.info
		m.info = &info
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.notice != "" {
			switch msg.String() {
			case "enter", "esc", " ":
				m.notice = ""
			}
			return m, nil
		}
		switch m.view {
		case viewLogin:
			return m.updateLogin(msg)
		case viewLibrary:
			return m.updateLibrary(msg)
		case viewDocument:
			return m.updateDocument(msg)
		case viewHelp:
			switch msg.String() {
			case "esc", "q", "?":
				m.view = m.back
			}
			return m, nil
		}
	}

	// Cursor blink and other input messages.
	var cmd tea.Cmd
	switch {
	case m.view == viewLogin && m.focus == fieldUsername:
		m.username, cmd = m.username.Update(msg)
	case m.view == viewLogin:
		m.password, cmd = m.password.Update(msg)
	case m.view == viewLibrary && m.searching:
		m.search, cmd = m.search.Update(msg)
	}
	return m, cmd
}

func (m appModel) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		m.focusField(1 - m.focus)
		return m, nil
	case "enter":
		if m.focus == fieldUsername {
			m.focusField(fieldPassword)
			return m, nil
		}
		user := strings.TrimSpace(m.username.Value())
		pass := m.password.Value()
		if user == "" || pass == "" {
			m.flash = "Enter a username and password"
			return m, nil
		}
		m.flash = ""
		m.submitting = true
		return m, tea.Batch(loginCmd(m.ctrl, m.notices, user, pass), m.spinner.Tick)
	}

	var cmd tea.Cmd
	if m.focus == fieldUsername {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m appModel) updateLibrary(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		switch msg.String() {
		case "esc":
			m.search.SetValue("")
			m.search.Blur()
			m.searching = false
			m.refreshDocs()
			return m, nil
		case "enter":
			m.search.Blur()
			m.searching = false
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.refreshDocs()
		return m, cmd
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "/":
		m.searching = true
		return m, m.search.Focus()
	case "esc":
		if m.search.Value() != "" {
			m.search.SetValue("")
			m.refreshDocs()
		}
		return m, nil
	case "enter":
		name, ok := m.currentName()
		if !ok || !m.ctrl.Viewer.Show(name) {
			return m, nil
		}
		m.view = viewDocument
		m.info = nil
		m.infoErr = ""
		m.infoLoading = true
		return m, infoCmd(m.ctrl, name)
	case "o":
		if name, ok := m.currentName(); ok {
			m.flash = "Opening " + name + "..."
			return m, openCmd(m.ctrl, name)
		}
		return m, nil
	case "r":
		if m.loading {
			return m, nil
		}
		m.loading = true
		m.flash = ""
		m.refreshDocs()
		return m, tea.Batch(loadListCmd(m.ctrl), m.spinner.Tick)
	case "y":
		if name, ok := m.currentName(); ok {
			m.copyURL(name)
		}
		return m, nil
	case "L":
		return m, logoutCmd(m.ctrl)
	case "?":
		m.back = m.view
		m.view = viewHelp
		return m, nil
	}

	var cmd tea.Cmd
	m.docs, cmd = m.docs.Update(msg)
	return m, cmd
}

func (m appModel) updateDocument(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace", "q":
		m.ctrl.Viewer.Close()
		m.view = viewLibrary
		m.info = nil
		m.infoErr = ""
		return m, nil
	case "o":
		if name, ok := m.ctrl.Viewer.Current(); ok {
			m.flash = "Opening " + name + "..."
			return m, openCmd(m.ctrl, name)
		}
	case "y":
		if name, ok := m.ctrl.Viewer.Current(); ok {
			m.copyURL(name)
		}
	case "?":
		m.back = m.view
		m.view = viewHelp
	}
	return m, nil
}

func (m *appModel) copyURL(name string) {
	u := m.ctrl.Viewer.URL(name)
	if err := copyToClipboard(u); err != nil {
		m.flash = "Copy failed: " + err.Error()
		return
	}
	m.flash = "Copied " + u
}

func (m appModel) View() string {
	var body string
	switch m.view {
	case viewLogin:
		body = m.viewLogin()
	case viewDocument:
		body = m.viewDocument()
	case viewHelp:
		md, _ := docs.Get("keys")
		body = RenderMarkdown(md, max(m.width-2, 20))
	default:
		body = m.viewLibrary()
	}
	if m.notice == "" {
		return body
	}
	box := styleNotice().Render(styleError().Render(m.notice) + "\n\n" + styleMuted().Render("enter to dismiss"))
	if m.width <= 0 || m.height <= 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m appModel) header() string {
	title := styleTitle().Render("Local Library")
	server := styleMuted().Render(m.ctrl.Client.BaseURL())
	line := title + "  " + server
	if m.loading || m.submitting {
		line += "  " + m.spinner.View()
	}
	return line
}

func (m appModel) viewLogin() string {
	var b strings.Builder
	b.WriteString(m.header() + "\n\n")
	b.WriteString(styleAccent().Render("Sign in") + "\n\n")
	b.WriteString(m.username.View() + "\n")
	b.WriteString(m.password.View() + "\n\n")
	switch {
	case m.submitting:
		b.WriteString(styleMuted().Render("Signing in..."))
	case m.flash != "":
		b.WriteString(styleError().Render(m.flash))
	default:
		b.WriteString(styleMuted().Render("tab switch field · enter sign in · ctrl+c quit"))
	}
	return b.String()
}

func (m appModel) viewLibrary() string {
	var b strings.Builder
	count := fmt.Sprintf("%d documents", len(m.ctrl.Library.Documents()))
	if q := m.search.Value(); q != "" {
		count = fmt.Sprintf("%d of %s", len(m.docs.Items()), count)
	}
	b.WriteString(m.header() + "  " + styleMuted().Render(count) + "\n")
	if m.searching || m.search.Value() != "" {
		b.WriteString(m.search.View() + "\n")
	} else {
		b.WriteString(styleMuted().Render("/ Search PDFs...") + "\n")
	}
	switch {
	case len(m.docs.Items()) > 0:
		b.WriteString(m.docs.View())
	case m.loading:
		b.WriteString(styleMuted().Render("Loading..."))
	case m.search.Value() != "":
		b.WriteString(styleMuted().Render("No documents match."))
	default:
		b.WriteString(styleMuted().Render("No documents."))
	}
	b.WriteString("\n")
	if m.flash != "" {
		b.WriteString(styleError().Render(m.flash) + "\n")
	}
	b.WriteString(styleMuted().Render("enter view · o open · y copy url · / search · r refresh · L sign out · ? help · q quit"))
	return b.String()
}

func (m appModel) viewDocument() string {
	name, ok := m.ctrl.Viewer.Current()
	if !ok {
		return m.viewLibrary()
	}
	var b strings.Builder
	b.WriteString(styleTitle().Render(name) + "\n")
	b.WriteString(styleMuted().Render(m.ctrl.Viewer.URL(name)) + "\n\n")
	switch {
	case m.infoLoading:
		b.WriteString("Loading..." + "\n")
	case m.infoErr != "":
		b.WriteString(styleError().Render(m.infoErr) + "\n")
	case m.info != nil:
		fmt.Fprintf(&b, "Size   %s\n", humanize.Bytes(uint64(m.info.Size)))
		if m.info.Pages > 0 {
			fmt.Fprintf(&b, "Pages  %d\n", m.info.Pages)
		}
		if m.info.ContentType != "" {
			fmt.Fprintf(&b, "Type   %s\n", m.info.ContentType)
		}
	}
	if h, ok := m.ctrl.Library.Thumbnail(name); ok {
		fmt.Fprintf(&b, "Preview %s %s\n", h.ContentType, humanize.Bytes(uint64(h.Size)))
	} else {
		b.WriteString("Preview none\n")
	}
	if m.flash != "" {
		b.WriteString("\n" + styleError().Render(m.flash) + "\n")
	}
	b.WriteString("\n" + styleMuted().Render("o open in viewer · y copy url · esc close"))
	panel := stylePanel()
	if m.width > 4 {
		panel = panel.Width(m.width - 2)
	}
	return panel.Render(b.String())
}
