package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/leadsync/internal/models"
)

var styles = NewPalette(Colors{
	Basic:   "#7D56F4",
	Pro:     "#D4A017",
	OK:      "#04B575",
	Err:     "#FF0000",
	Warn:    "#FFA500",
	Muted:   "#626262",
	Contact: "#2E9BDA",
})

// Colors names the hex colors a [Palette] is built from.
type Colors struct {
	Basic, Pro     string // namespace badges
	OK, Err, Warn  string
	Muted, Contact string
}

// struct Palette is a small stylesheet of named [lipgloss.Style] fields
type Palette struct {
	title   lipgloss.Style
	ok      lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style
	help    lipgloss.Style
	contact lipgloss.Style
	basic   lipgloss.Style
	pro     lipgloss.Style
}

func NewPalette(c Colors) *Palette {
	badge := func(bg string) lipgloss.Style {
		return NewBold("#FFFFFF").Background(lipgloss.Color(bg)).Padding(0, 1)
	}
	return &Palette{
		title:   NewBold(c.Basic).MarginBottom(1),
		ok:      NewBold(c.OK),
		err:     NewBold(c.Err),
		warn:    NewStyle(c.Warn),
		help:    NewStyle(c.Muted).Italic(true),
		contact: NewBold(c.Contact),
		basic:   badge(c.Basic),
		pro:     badge(c.Pro),
	}
}

// badge returns the header badge style for v.
func (p *Palette) badge(v models.Version) lipgloss.Style {
	if v == models.VersionPro {
		return p.pro
	}
	return p.basic
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}
