package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var bannerStyle = lipgloss.NewStyle().
	Bold(true).
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("212"))

const menuExit = "exit"

// runMenu shows the scenario picker until the user exits
func runMenu(ctx context.Context, a *app) error {
	fmt.Fprintln(a.out, bannerStyle.Render("Agent trace demo"))

	for {
		choice, err := pickScenario(ctx)
		if err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return err
		}
		if choice == menuExit {
			return nil
		}
		// failures are already reported; keep the menu running
		_ = a.runScenarios(ctx, choice)
	}
}

func pickScenario(ctx context.Context) (string, error) {
	options := make([]huh.Option[string], 0, len(scenarios)+2)
	for _, s := range scenarios {
		options = append(options, huh.NewOption(fmt.Sprintf("%-12s %s", s.Name, s.Description), s.Name))
	}
	options = append(options,
		huh.NewOption(fmt.Sprintf("%-12s %s", scenarioAll, "Run every scenario"), scenarioAll),
		huh.NewOption("Exit", menuExit),
	)

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which scenario should run?").
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}
	return choice, nil
}
