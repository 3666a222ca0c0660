package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newShellCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Launch the interactive submission prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, app)
		},
	}
}

var (
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// runShell launches the bubbletea prompt: `process <exercise-name>
// <file-path>` / `quit`, with tab-completion over exercise names.
func runShell(cmd *cobra.Command, app *AppContext) error {
	ctx, log := app.CommandContext(cmd, "command.shell")

	exercises, err := app.Ref.Store().ListExercises(ctx)
	if err != nil {
		return fmt.Errorf("list exercises: %w", err)
	}

	input := textinput.New()
	input.Placeholder = "process <exercise-name> <file-path>  |  quit"
	input.ShowSuggestions = true
	input.SetSuggestions(candidatesFor("", exercises))
	input.Focus()

	m := shellModel{
		input:     input,
		exercises: exercises,
		app:       app,
		ctx:       ctx,
	}

	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		if log != nil {
			log.Error(err, "shell exited with error")
		}
		return err
	}
	return nil
}

type shellModel struct {
	input     textinput.Model
	exercises []string
	app       *AppContext
	ctx       context.Context
	lines     []string
	quitting  bool
}

func (m shellModel) Init() tea.Cmd { return textinput.Blink }

func (m shellModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			m.input.SetSuggestions(candidatesFor("", m.exercises))
			if line == "" {
				return m, nil
			}
			m.lines = append(m.lines, promptStyle.Render("> ")+line)
			if line == "quit" {
				m.quitting = true
				return m, tea.Quit
			}
			m.lines = append(m.lines, m.runCommand(line))
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.input.SetSuggestions(candidatesFor(m.input.Value(), m.exercises))
	return m, cmd
}

func (m shellModel) View() string {
	var b strings.Builder
	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if !m.quitting {
		b.WriteString(m.input.View())
	}
	return b.String()
}

// runCommand executes one `process <exercise-name> <file-path>` line
// and renders its outcome.
func (m shellModel) runCommand(line string) string {
	fields := strings.Fields(line)
	if fields[0] != "process" || len(fields) != 3 {
		return errStyle.Render("not a known command, expected: process <exercise-name> <file-path>")
	}

	data, err := os.ReadFile(fields[2])
	if err != nil {
		return errStyle.Render(fmt.Sprintf("read %s: %v", fields[2], err))
	}

	report, err := m.app.Ref.ProcessSubmission(m.ctx, fields[1], string(data), m.app.User)
	if err != nil {
		return errStyle.Render(fmt.Sprintf("got error: %v", err))
	}

	var out strings.Builder
	out.WriteString(okStyle.Render("ok, got:"))
	for _, view := range report.Sorted() {
		out.WriteString(fmt.Sprintf("\n  %s: (%s, %s, %.1f)", view.Name, view.Outcome.Build, view.Outcome.Run, view.Outcome.Points))
	}
	return out.String()
}

// candidatesFor computes full command-line completions for the
// partial input: suggest "process"/"quit" on an empty or partial
// command word, then exercise-name completions once "process" is the
// command, then a file-path placeholder once the exercise name is
// unambiguous.
func candidatesFor(input string, exercises []string) []string {
	fields := strings.Fields(input)
	stems := []string{"quit", "process"}

	if len(fields) == 0 {
		return stems
	}

	command := fields[0]
	if command != "process" {
		var matches []string
		for _, s := range stems {
			if strings.HasPrefix(s, command) {
				matches = append(matches, s)
			}
		}
		return matches
	}

	prefix := ""
	if len(fields) > 1 {
		prefix = fields[1]
	}

	var names []string
	for _, ex := range exercises {
		if strings.HasPrefix(ex, prefix) {
			names = append(names, ex)
		}
	}
	sort.Strings(names)

	candidates := make([]string, 0, len(names))
	for _, name := range names {
		candidates = append(candidates, "process "+name)
	}

	if len(candidates) != 1 {
		return candidates
	}
	if len(fields) < 3 {
		return candidates
	}
	return []string{candidates[0] + " " + fields[2]}
}
