// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sideline-ai/sideline/schema"
)

// busEventMsg wraps a bus event for delivery through the bubbletea
// message loop.
type busEventMsg struct {
	event   schema.Event
	payload any
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Width(22)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	rankStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	statusStyles = map[schema.AgentStatus]lipgloss.Style{
		schema.StatusIdle:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		schema.StatusWorking:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		schema.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		schema.StatusError:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// agentRow is one line of the agent panel.
type agentRow struct {
	status schema.AgentStatus
	at     time.Time
}

// Model renders live agent activity and the latest ranked talking
// points for one session (or all sessions when no filter is set).
type Model struct {
	events  <-chan busEventMsg
	session string

	width  int
	height int

	spinner     spinner.Model
	agents      map[string]agentRow
	suggestions []schema.Suggestion
	suggestedAt time.Time
	seen        int
}

// NewModel returns a Model reading bus events from events. When session
// is non-empty, events for other sessions are ignored.
func NewModel(events <-chan busEventMsg, session string) Model {
	spin := spinner.New()
	spin.Spinner = spinner.MiniDot
	spin.Style = statusStyles[schema.StatusWorking]
	return Model{
		events:  events,
		session: session,
		spinner: spin,
		agents:  make(map[string]agentRow),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(listenForBusEvent(m.events), m.spinner.Tick)
}

// listenForBusEvent returns a tea.Cmd that blocks until the next bus
// event, then delivers it into the message loop.
func listenForBusEvent(events <-chan busEventMsg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

// Update implements tea.Model.
func (m Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch message.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(message)
		return m, cmd

	case busEventMsg:
		m.apply(message)
		return m, listenForBusEvent(m.events)
	}
	return m, nil
}

func (m *Model) apply(msg busEventMsg) {
	if m.session != "" && msg.event.SessionID != m.session {
		return
	}
	m.seen++
	switch payload := msg.payload.(type) {
	case schema.AgentStatusPayload:
		m.agents[payload.AgentName] = agentRow{status: payload.Status, at: payload.Timestamp}
	case schema.SuggestionsReadyPayload:
		m.suggestions = payload.Suggestions
		m.suggestedAt = msg.event.Timestamp
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	title := "Sideline"
	if m.session != "" {
		title += " — " + m.session
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Agents"))
	b.WriteString("\n")
	if len(m.agents) == 0 {
		b.WriteString(dimStyle.Render("  waiting for activity..."))
		b.WriteString("\n")
	}
	for _, name := range sortedAgentNames(m.agents) {
		row := m.agents[name]
		style, ok := statusStyles[row.status]
		if !ok {
			style = dimStyle
		}
		marker := "  "
		if row.status == schema.StatusWorking {
			marker = m.spinner.View() + " "
		}
		b.WriteString(marker)
		b.WriteString(agentStyle.Render(name))
		b.WriteString(style.Render(string(row.status)))
		b.WriteString(dimStyle.Render("  " + row.at.Local().Format("15:04:05")))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Talking points"))
	if !m.suggestedAt.IsZero() {
		b.WriteString(dimStyle.Render("  (as of " + m.suggestedAt.Local().Format("15:04:05") + ")"))
	}
	b.WriteString("\n")
	if len(m.suggestions) == 0 {
		b.WriteString(dimStyle.Render("  none yet"))
		b.WriteString("\n")
	}
	for _, suggestion := range m.suggestions {
		b.WriteString("  ")
		b.WriteString(rankStyle.Render(fmt.Sprintf("%d.", suggestion.Rank)))
		b.WriteString(" ")
		b.WriteString(wrapIndented(suggestion.TalkingPoint, m.width))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(fmt.Sprintf("     %s · confidence %.2f · %s",
			suggestion.Source, suggestion.ConfidenceScore, suggestion.Type)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d events · q to quit", m.seen)))
	b.WriteString("\n")
	return b.String()
}

func sortedAgentNames(agents map[string]agentRow) []string {
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// wrapIndented soft-wraps text to the terminal width, indenting
// continuation lines under the talking point column.
func wrapIndented(text string, width int) string {
	const indent = 5
	if width <= indent+10 {
		return text
	}
	limit := width - indent
	words := strings.Fields(text)
	var lines []string
	var line string
	for _, word := range words {
		if line != "" && len(line)+1+len(word) > limit {
			lines = append(lines, line)
			line = word
			continue
		}
		if line == "" {
			line = word
		} else {
			line += " " + word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"+strings.Repeat(" ", indent))
}
