package main

import (
	"fmt"
	"strings"

	"github.com/cuemby/canopy/pkg/app"
	"github.com/cuemby/canopy/pkg/connector"
	"github.com/cuemby/canopy/pkg/ui"
)

// demoBuilder returns the builder of the bundled greeting application.
// With custom layouts enabled the form is placed into the "demo" template.
func demoBuilder(customLayout bool) app.Builder {
	return func(root *connector.Root) error {
		greeting := ui.NewLabel("Who are you?")
		name := ui.NewTextField("Name")
		name.SetMaxLength(64)
		name.SetImmediate(true)

		greet := ui.NewButton("Greet", func(*ui.Button) {
			who := strings.TrimSpace(name.Text())
			if who == "" {
				who = "stranger"
			}
			greeting.SetText(fmt.Sprintf("Hello, %s!", who))
		})

		about := ui.NewButton("About", func(*ui.Button) {
			win := ui.NewWindow("About", ui.NewLabel(fmt.Sprintf("Canopy %s, root %d", Version, root.RootID())))
			win.SetWidth("300px")
			root.AddWindow(win)
		})

		buttons := ui.NewHorizontalLayout(greet, about)
		buttons.SetSpacing(true)

		if customLayout {
			form := ui.NewCustomLayout("demo")
			form.AddComponentAt(greeting, "greeting")
			form.AddComponentAt(name, "name")
			form.AddComponentAt(buttons, "buttons")
			form.SetSizeFull()
			root.SetContent(form)
			return nil
		}

		content := ui.NewVerticalLayout(greeting, name, buttons)
		content.SetSpacing(true)
		content.SetWidth("100%")
		root.SetContent(content)
		return nil
	}
}
