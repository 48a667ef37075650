package chatbot

import (
	"fmt"
	"strings"

	"LegalMind/internal/clarify"
	"LegalMind/internal/transcript"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF"))

	questionBox = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1)

	cardBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1)
)

// renderer formats transcript turns for the terminal. Plain mode skips
// markdown rendering and styling.
type renderer struct {
	plain    bool
	markdown *glamour.TermRenderer
}

func newRenderer(plain bool) *renderer {
	r := &renderer{plain: plain}
	if plain {
		return r
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(100),
	)
	if err == nil {
		r.markdown = md
	}
	return r
}

func (r *renderer) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

func (r *renderer) body(text string) string {
	if r.markdown == nil {
		return text
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// Turn renders one transcript entry.
func (r *renderer) Turn(t transcript.Turn) string {
	var b strings.Builder

	if t.Role == transcript.RoleUser {
		b.WriteString(r.style(mutedStyle, "You: "+t.Text))
		if t.AttachmentName != "" && t.Text != "File: "+t.AttachmentName {
			b.WriteString(r.style(mutedStyle, " [file: "+t.AttachmentName+"]"))
		}
		return b.String()
	}

	b.WriteString(r.style(labelStyle, "LegalMind:"))
	b.WriteString("\n")
	b.WriteString(r.body(t.Text))

	if meta := r.meta(t); meta != "" {
		b.WriteString("\n")
		b.WriteString(r.style(mutedStyle, meta))
	}
	for _, c := range t.Consultants {
		b.WriteString("\n")
		b.WriteString(r.style(cardBox, consultantCard(c)))
	}
	for _, a := range t.Actions {
		b.WriteString("\n")
		b.WriteString(r.style(cardBox, actionCard(a)))
	}
	return b.String()
}

func (r *renderer) meta(t transcript.Turn) string {
	var parts []string
	if t.Source != "" {
		parts = append(parts, "source: "+string(t.Source))
	}
	if t.Confidence != nil {
		parts = append(parts, fmt.Sprintf("confidence: %.0f%%", *t.Confidence*100))
	}
	return strings.Join(parts, " | ")
}

func consultantCard(c transcript.Consultant) string {
	lines := []string{c.Name + " (" + c.Specialization + ")"}
	if c.Location != "" {
		lines = append(lines, "Location: "+c.Location)
	}
	if c.Rating != nil {
		lines = append(lines, fmt.Sprintf("Rating: %.1f", *c.Rating))
	}
	if len(c.SpokenLanguages) > 0 {
		lines = append(lines, "Languages: "+strings.Join(c.SpokenLanguages, ", "))
	}
	if c.Contact != nil {
		for _, v := range []string{c.Contact.Phone, c.Contact.Email, c.Contact.Website} {
			if v != "" {
				lines = append(lines, "Contact: "+v)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func actionCard(a transcript.ActionItem) string {
	lines := []string{"[" + string(a.Kind) + "] " + a.Title}
	if a.Description != "" {
		lines = append(lines, a.Description)
	}
	for i, step := range a.Steps {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, step))
	}
	if a.URL != "" {
		lines = append(lines, a.URL)
	}
	if a.FormRef != "" {
		lines = append(lines, "Form: "+a.FormRef)
	}
	return strings.Join(lines, "\n")
}

// Clarification renders an outstanding question with numbered options.
func (r *renderer) Clarification(s clarify.State) string {
	lines := []string{"? " + s.Question}
	for i, opt := range s.Options {
		lines = append(lines, fmt.Sprintf("  %d) %s", i+1, opt))
	}
	if len(s.Options) > 0 {
		lines = append(lines, "Answer with /answer <n> or type a reply.")
	} else {
		lines = append(lines, "Type your answer.")
	}
	return r.style(questionBox, strings.Join(lines, "\n"))
}
