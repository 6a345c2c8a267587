package dashboard

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit     key.Binding
	Incident key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "выход"),
	),
	Incident: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i", "инцидент / текущее"),
	),
}

func (k keyMap) help() string {
	var out string
	for i, b := range []key.Binding{k.Incident, k.Quit} {
		if i > 0 {
			out += "  "
		}
		h := b.Help()
		out += h.Key + " " + h.Desc
	}
	return out
}
