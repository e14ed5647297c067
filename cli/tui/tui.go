package tui

import (
	"fmt"
	"slices"
	"strings"
)

// View types with TUI support.
const (
	ViewInspectTimestep = "inspect_timestep"
	ViewInspectObject   = "inspect_object"
	ViewInspectMap      = "inspect_map"
	ViewInspectRoster   = "inspect_roster"
	ViewWatch           = "watch"
)

// Run starts the static TUI for the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	if strings.HasPrefix(viewType, "inspect_") {
		return RunInspectTUI(viewType, data)
	}
	// watch is live and started through RunWatchTUI.
	return fmt.Errorf("view %s needs a live session", viewType)
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{
		ViewInspectTimestep,
		ViewInspectObject,
		ViewInspectMap,
		ViewInspectRoster,
		ViewWatch,
	}
}
