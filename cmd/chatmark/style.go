package main

import (
	"fmt"
	"strings"

	"chatmark/internal/domain"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#808080", Dark: "#6C6C6C"})
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))

	roleStyles = map[domain.Role]lipgloss.Style{
		domain.RoleUser:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4A9EFF")),
		domain.RoleAssistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575")),
		domain.RoleSystem:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#808080")),
	}

	titleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

const (
	idWidth    = 22
	titleWidth = 40
	siteWidth  = 10
	timeLayout = "2006-01-02 15:04"
)

// clip shortens s to n runes, marking the cut with "…".
func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func cell(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(clip(s, width-1))
}

// siteLabel renders a site name in its theme color.
func siteLabel(name, color string) string {
	st := lipgloss.NewStyle().Width(siteWidth)
	if color != "" {
		st = st.Foreground(lipgloss.Color(color))
	}
	return st.Render(clip(name, siteWidth-1))
}

func formatTime(ts domain.Timestamp) string {
	if ts == 0 {
		return "-"
	}
	return ts.Time().Local().Format(timeLayout)
}

// renderChats lists chats one per line, in the given order.
func renderChats(chats []domain.Chat) string {
	if len(chats) == 0 {
		return dimStyle.Render("No chats found.") + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		cell("CHAT", idWidth), cell("TITLE", titleWidth), cell("SITE", siteWidth), "MSGS  UPDATED")))
	b.WriteString("\n")
	for _, c := range chats {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			cell(c.ID, idWidth),
			cell(c.Title, titleWidth),
			siteLabel(c.SiteName, c.ThemeColor),
			fmt.Sprintf("%-4d  ", len(c.Messages)),
			dimStyle.Render(formatTime(c.LastUpdated)),
		))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d chat(s)", len(chats))))
	b.WriteString("\n")
	return b.String()
}

// renderChat prints a chat header followed by its messages in ordinal order.
func renderChat(c domain.Chat) string {
	var b strings.Builder
	title := c.Title
	if title == "" {
		title = c.ID
	}
	header := lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(title),
		siteLabel(c.SiteName, c.ThemeColor)+dimStyle.Render(c.URL),
	)
	b.WriteString(titleBox.Render(header))
	b.WriteString("\n")

	msgs := domain.SortByOrdinal(c.Messages)
	if len(msgs) == 0 {
		b.WriteString(dimStyle.Render("No messages tracked."))
		b.WriteString("\n")
		return b.String()
	}
	for _, m := range msgs {
		role, ok := roleStyles[m.Role]
		if !ok {
			role = roleStyles[domain.RoleSystem]
		}
		b.WriteString(fmt.Sprintf("%3d %s %s\n    %s\n",
			m.Ordinal,
			role.Render(fmt.Sprintf("%-9s", m.Role)),
			dimStyle.Render(m.ID),
			m.Excerpt,
		))
	}
	return b.String()
}

func renderBookmarks(bookmarks []domain.Bookmark) string {
	if len(bookmarks) == 0 {
		return dimStyle.Render("No bookmarks.") + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		cell("CHAT", idWidth), cell("TITLE", titleWidth), cell("SITE", siteWidth), "SAVED")))
	b.WriteString("\n")
	for _, bm := range bookmarks {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			cell(bm.ChatID, idWidth),
			cell(bm.Title, titleWidth),
			siteLabel(bm.SiteName, bm.ThemeColor),
			dimStyle.Render(formatTime(bm.Timestamp)),
		))
		b.WriteString("\n")
		if bm.URL != "" {
			b.WriteString(strings.Repeat(" ", idWidth) + dimStyle.Render(bm.URL) + "\n")
		}
	}
	return b.String()
}

func passLine(check, detail string) string {
	return fmt.Sprintf("  %s %-20s %s\n", passStyle.Render("[PASS]"), check, detail)
}

func failLine(check, detail string) string {
	return fmt.Sprintf("  %s %-20s %s\n", errorStyle.Render("[FAIL]"), check, detail)
}

func warnLine(check, detail string) string {
	return fmt.Sprintf("  %s %-20s %s\n", warnStyle.Render("[WARN]"), check, detail)
}
