package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tankreplay/cli/render"
	"github.com/justapithecus/tankreplay/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version     string `json:"version"`
	FeedVersion string `json:"feed_version"`
	Commit      string `json:"commit"`
}

// VersionCommand returns the version command.
// It must not contact the replay server.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", exitError)
		}

		return r.Render(VersionResponse{
			Version:     types.Version,
			FeedVersion: types.FeedVersion,
			Commit:      commit,
		})
	}
}
