package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bingyoan/SAUSEGE/internal/menu"
)

// Lipgloss styles
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("208")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("215"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)
)

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	switch a.screen {
	case screenWelcome:
		return a.viewWelcome()
	case screenProcessing:
		return a.viewProcessing()
	case screenOrdering:
		return a.viewOrdering()
	case screenSummary:
		return a.viewSummary()
	case screenHistory:
		return a.viewHistory()
	case screenSettings:
		return a.viewSettings()
	}
	return ""
}

func (a *App) viewWelcome() string {
	var content strings.Builder

	content.WriteString(headerStyle.Render(" Sausage Menu Scanner ") + "\n\n")
	content.WriteString(labelStyle.Render("Scan a menu photo and order in your own language.") + "\n\n")
	content.WriteString(a.pathInput.View() + "\n")
	content.WriteString(dimStyle.Render(fmt.Sprintf("Language: %s → %s",
		a.sess.TargetLang(), a.sess.TargetLang().TargetCurrency())) + "\n")

	if a.statusMsg != "" {
		content.WriteString("\n" + errorStyle.Render(a.statusMsg) + "\n")
	}

	content.WriteString("\n" + footer(
		"enter", "scan",
		"ctrl+l", "language",
		"ctrl+h", "history",
		"ctrl+o", "settings",
		"ctrl+c", "quit",
	))

	return containerStyle.Render(content.String())
}

func (a *App) viewProcessing() string {
	var content strings.Builder

	content.WriteString(headerStyle.Render(" Sausage Menu Scanner ") + "\n\n")
	content.WriteString(a.spin.View() + labelStyle.Render(" Reading the menu...") + "\n")
	content.WriteString(dimStyle.Render("This can take up to a minute for dense menus.") + "\n")
	content.WriteString("\n" + footer("esc", "abandon"))

	return containerStyle.Render(content.String())
}

func (a *App) viewOrdering() string {
	var content strings.Builder

	content.WriteString(a.menuList.View() + "\n")

	snap := a.sess.Snapshot()
	if snap.Menu != nil {
		line := fmt.Sprintf("Detected %s", snap.Menu.DetectedLanguage)
		if !a.hidePrice {
			line += fmt.Sprintf(" · 1 %s = %.4f %s",
				snap.Menu.OriginalCurrency, snap.Menu.ExchangeRate, snap.Menu.TargetCurrency)
		}
		content.WriteString(dimStyle.Render(line) + "\n")
	}

	content.WriteString(sectionStyle.Render(fmt.Sprintf("┃ Cart: %d items", cartCount(snap.Cart))))
	if !a.hidePrice && snap.Menu != nil {
		content.WriteString(valueStyle.Render(fmt.Sprintf("  %.2f %s",
			snap.Cart.Total()*snap.Menu.ExchangeRate, snap.Menu.TargetCurrency)))
	}
	content.WriteString("\n")

	if a.explanation != "" {
		content.WriteString(sectionStyle.Render("┃ About this dish") + "\n")
		content.WriteString(labelStyle.Render("  "+a.explanation) + "\n")
	}

	if a.statusMsg != "" {
		content.WriteString(errorStyle.Render(a.statusMsg) + "\n")
	}

	content.WriteString("\n" + footer(
		"+/-", "quantity",
		"e", "explain",
		"enter", "summary",
		"esc", "back",
	))

	return containerStyle.Render(content.String())
}

func (a *App) viewSummary() string {
	var content strings.Builder
	snap := a.sess.Snapshot()

	content.WriteString(headerStyle.Render(" Order Summary ") + "\n")

	ids := make([]string, 0, len(snap.Cart))
	for id := range snap.Cart {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ci := snap.Cart[id]
		line := fmt.Sprintf("  %d × %s", ci.Quantity, ci.Item.TranslatedName)
		content.WriteString(labelStyle.Render(line))
		if !a.hidePrice && snap.Menu != nil {
			content.WriteString(dimStyle.Render(fmt.Sprintf("  %.2f %s",
				ci.Item.Price*float64(ci.Quantity)*snap.Menu.ExchangeRate, snap.Menu.TargetCurrency)))
		}
		content.WriteString("\n")
	}

	if len(snap.Cart) == 0 {
		content.WriteString(dimStyle.Render("  Cart is empty") + "\n")
	}

	content.WriteString(sectionStyle.Render("┃ Total") + " ")
	if snap.Menu != nil {
		if a.hidePrice {
			content.WriteString(valueStyle.Render(fmt.Sprintf("%.2f %s",
				snap.Cart.Total(), snap.Menu.OriginalCurrency)))
		} else {
			content.WriteString(valueStyle.Render(fmt.Sprintf("%.2f %s",
				snap.Cart.Total()*snap.Menu.ExchangeRate, snap.Menu.TargetCurrency)) +
				dimStyle.Render(fmt.Sprintf("  (%.2f %s)", snap.Cart.Total(), snap.Menu.OriginalCurrency)))
		}
	}
	content.WriteString("\n")

	if a.statusMsg != "" {
		content.WriteString(errorStyle.Render(a.statusMsg) + "\n")
	}

	content.WriteString("\n" + footer(
		"c", "checkout",
		"esc", "back to menu",
	))

	return containerStyle.Render(content.String())
}

func (a *App) viewHistory() string {
	var content strings.Builder

	content.WriteString(a.historyList.View() + "\n")
	if a.statusMsg != "" {
		content.WriteString(errorStyle.Render(a.statusMsg) + "\n")
	}
	content.WriteString("\n" + footer(
		"d", "delete",
		"esc", "back",
	))

	return containerStyle.Render(content.String())
}

func (a *App) viewSettings() string {
	var content strings.Builder

	content.WriteString(headerStyle.Render(" Settings ") + "\n\n")

	names := [fieldCount]string{"API key", "Tax rate", "Service rate"}
	for f := settingsField(0); f < fieldCount; f++ {
		marker := "  "
		if f == a.settingsFocus {
			marker = valueStyle.Render("› ")
		}
		content.WriteString(marker + labelStyle.Render(names[f]))
		if f == a.settingsFocus {
			content.WriteString("  " + a.settingInput.View())
		}
		content.WriteString("\n")
	}

	hide := "off"
	if a.hidePrice {
		hide = "on"
	}
	content.WriteString("\n" + labelStyle.Render("Hide prices: ") + valueStyle.Render(hide) + "\n")

	if a.statusMsg != "" {
		content.WriteString("\n" + errorStyle.Render(a.statusMsg) + "\n")
	}

	content.WriteString("\n" + footer(
		"tab", "next field",
		"ctrl+p", "toggle prices",
		"enter", "save",
	))

	return containerStyle.Render(content.String())
}

// footer renders alternating key/label pairs.
func footer(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			b.WriteString(footerStyle.Render("  "))
		}
		b.WriteString(footerKeyStyle.Render("[" + pairs[i] + "]"))
		b.WriteString(footerStyle.Render(" " + pairs[i+1]))
	}
	return b.String()
}

func cartCount(cart menu.Cart) int {
	var n int
	for _, ci := range cart {
		n += ci.Quantity
	}
	return n
}
