package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/abritton2002/emg-collector/internal/export"
	"github.com/abritton2002/emg-collector/internal/pairing"
)

var (
	countdownStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	pairedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	cancelledStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// FormPrompter asks the operator through interactive terminal forms
type FormPrompter struct{}

var _ pairing.Prompter = FormPrompter{}

func (FormPrompter) PairNumber(ctx context.Context) (int, bool, error) {
	var value string

	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Pair number of the sensor").Value(&value).Validate(validatePairNumber),
	)).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	n, _ := strconv.Atoi(strings.TrimSpace(value))
	return n, true, nil
}

func (FormPrompter) PairAnother(ctx context.Context) (bool, error) {
	var again bool

	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title("Pair another sensor?").Value(&again),
	)).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return again, err
}

// PromptFileInfo asks for the fields the export filename is built from
func PromptFileInfo(ctx context.Context, now time.Time) (export.FileInfo, error) {
	info := export.FileInfo{Date: now, SessionType: export.SessionOther}

	options := make([]huh.Option[export.SessionType], len(export.SessionTypes))
	for i, t := range export.SessionTypes {
		options[i] = huh.NewOption(string(t), t)
	}

	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("TraqID").Value(&info.TraqID).Validate(func(s string) error {
			return export.FileInfo{TraqID: s, Athlete: "x", SessionType: export.SessionOther}.Validate()
		}),
		huh.NewInput().Title("Athlete name").Value(&info.Athlete).Validate(func(s string) error {
			return export.FileInfo{TraqID: "x", Athlete: s, SessionType: export.SessionOther}.Validate()
		}),
		huh.NewSelect[export.SessionType]().Title("Session type").Options(options...).Value(&info.SessionType),
	)).RunWithContext(ctx)
	if err != nil {
		return export.FileInfo{}, fmt.Errorf("prompting file info: %w", err)
	}

	return info, nil
}

func validatePairNumber(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}

	return nil
}

// countdownPrinter renders pairing progress as a single updating line
func countdownPrinter(w io.Writer) func(pairing.Attempt) {
	return func(a pairing.Attempt) {
		switch a.State {
		case pairing.StateRequested:
			fmt.Fprintf(w, "\r%s %s",
				countdownStyle.Render(fmt.Sprintf("Pairing sensor %d: %2ds", a.PairNumber, a.Remaining)),
				mutedStyle.Render("press the sensor button"))
		case pairing.StatePaired:
			fmt.Fprintf(w, "\r%s\n", pairedStyle.Render(fmt.Sprintf("Sensor %d paired", a.PairNumber)))
		case pairing.StateCancelled:
			fmt.Fprintf(w, "\r%s\n", cancelledStyle.Render(fmt.Sprintf("Pairing sensor %d timed out", a.PairNumber)))
		}
	}
}
