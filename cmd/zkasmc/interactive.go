package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-zkasm/compiler"
)

const listWidth = 28

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next")),
	Toggle: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "zkasm/ir")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type pane int

const (
	paneCode pane = iota
	paneIR
)

type browserModel struct {
	ctx      context.Context
	err      error
	res      *compiler.Result
	filename string
	data     []byte
	settings compiler.Settings
	st       styles
	view     viewport.Model
	selected int
	pane     pane
	ready    bool
}

type compiledMsg struct {
	err error
	res *compiler.Result
}

func newBrowserModel(ctx context.Context, filename string, data []byte, s compiler.Settings) *browserModel {
	return &browserModel{
		ctx:      ctx,
		filename: filename,
		data:     data,
		settings: s,
		st:       newStyles(true),
	}
}

func (m *browserModel) Init() tea.Cmd {
	return m.compile
}

func (m *browserModel) compile() tea.Msg {
	res, err := compiler.Compile(m.ctx, m.data, m.settings)
	return compiledMsg{res: res, err: err}
}

func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.selected > 0 {
				m.selected--
				m.refresh()
			}
			return m, nil
		case key.Matches(msg, keys.Down):
			if m.res != nil && m.selected < len(m.res.Functions)-1 {
				m.selected++
				m.refresh()
			}
			return m, nil
		case key.Matches(msg, keys.Toggle):
			if m.pane == paneCode {
				m.pane = paneIR
			} else {
				m.pane = paneCode
			}
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		w, h := max(msg.Width-listWidth-2, 20), max(msg.Height-4, 5)
		if !m.ready {
			m.view = viewport.New(w, h)
			m.ready = true
		} else {
			m.view.Width, m.view.Height = w, h
		}
		m.refresh()

	case compiledMsg:
		m.res, m.err = msg.res, msg.err
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

// refresh loads the selected function into the viewport.
func (m *browserModel) refresh() {
	if !m.ready || m.res == nil || len(m.res.Functions) == 0 {
		return
	}
	f := m.res.Functions[m.selected]
	if m.pane == paneIR {
		m.view.SetContent(f.IR)
	} else {
		m.view.SetContent(strings.Join(f.Lines, "\n"))
	}
	m.view.GotoTop()
}

func (m *browserModel) View() string {
	if m.err != nil {
		return m.st.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.res == nil || !m.ready {
		return "Compiling " + m.filename + "..."
	}

	var b strings.Builder
	b.WriteString(m.st.title.Render("zkasmc"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	fmt.Fprintf(&b, " %s\n\n", m.st.dim.Render(fmt.Sprintf("%d functions, %d lines, %s",
		len(m.res.Functions), len(m.res.Program.Lines), m.res.Elapsed)))

	var list strings.Builder
	for i, f := range m.res.Functions {
		label := fmt.Sprintf("%-*s", listWidth-2, truncate(f.Name, listWidth-2))
		if i == m.selected {
			list.WriteString(m.st.sel.Render("> " + label))
		} else {
			list.WriteString("  " + m.st.name.Render(label))
		}
		list.WriteString("\n")
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(listWidth).Render(list.String()),
		m.view.View()))
	b.WriteString("\n")
	b.WriteString(m.st.dim.Render(helpLine(keys.Up, keys.Down, keys.Toggle, keys.Quit)))
	return b.String()
}

func helpLine(bs ...key.Binding) string {
	parts := make([]string, len(bs))
	for i, kb := range bs {
		h := kb.Help()
		parts[i] = h.Key + " " + h.Desc
	}
	return strings.Join(parts, " • ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func runInteractive(ctx context.Context, filename string, data []byte, s compiler.Settings) error {
	p := tea.NewProgram(newBrowserModel(ctx, filename, data, s), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
