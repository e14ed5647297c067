package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tankreplay/cli/reader"
	"github.com/justapithecus/tankreplay/cli/render"
	"github.com/justapithecus/tankreplay/cli/tui"
)

// InspectCommand returns the inspect command with subcommands.
// Each subcommand ingests the replay until it finishes or a limit is
// reached, then shows one view of the reconstructed history.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect reconstructed replay state (timestep, object, map, roster)",
		Subcommands: []*cli.Command{
			inspectTimestepCommand(),
			inspectObjectCommand(),
			inspectMapCommand(),
			inspectRosterCommand(),
		},
	}
}

func inspectFlags() []cli.Flag {
	return append(ReadOnlyFlags(), SessionFlags()...)
}

func inspectTimestepCommand() *cli.Command {
	return &cli.Command{
		Name:      "timestep",
		Usage:     "Show every object on one turn",
		ArgsUsage: "[index|latest]",
		Flags:     inspectFlags(),
		Action: func(c *cli.Context) error {
			index, err := reader.ParseIndex(c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), exitError)
			}
			return inspectAction(c, tui.ViewInspectTimestep, func(rd reader.Reader) (any, error) {
				return rd.Timestep(index)
			})
		},
	}
}

func inspectObjectCommand() *cli.Command {
	return &cli.Command{
		Name:      "object",
		Usage:     "Show one object's state and lifecycle",
		ArgsUsage: "<object-id> [index|latest]",
		Flags:     inspectFlags(),
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return cli.Exit("object ID required", exitError)
			}
			index, err := reader.ParseIndex(c.Args().Get(1))
			if err != nil {
				return cli.Exit(err.Error(), exitError)
			}
			return inspectAction(c, tui.ViewInspectObject, func(rd reader.Reader) (any, error) {
				return rd.Object(id, index)
			})
		},
	}
}

func inspectMapCommand() *cli.Command {
	return &cli.Command{
		Name:  "map",
		Usage: "Show the battlefield grid",
		Flags: inspectFlags(),
		Action: func(c *cli.Context) error {
			return inspectAction(c, tui.ViewInspectMap, func(rd reader.Reader) (any, error) {
				return rd.Map()
			})
		},
	}
}

func inspectRosterCommand() *cli.Command {
	return &cli.Command{
		Name:  "roster",
		Usage: "Show the match participants",
		Flags: inspectFlags(),
		Action: func(c *cli.Context) error {
			return inspectAction(c, tui.ViewInspectRoster, func(rd reader.Reader) (any, error) {
				return rd.Roster()
			})
		},
	}
}

// inspectAction runs the session, then renders view. A session that
// stopped early still shows what it ingested and keeps its exit code.
func inspectAction(c *cli.Context, viewType string, view func(reader.Reader) (any, error)) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	sess, err := openSession(c, cfg, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signalContext(c.Context)
	defer stop()

	result, runErr := sess.Run(ctx)
	writeReport(c, sess, result, runErr)

	data, err := view(reader.NewStateReader(sess.State(), sess.Meta()))
	if err != nil {
		if errors.Is(err, reader.ErrNotAvailable) && runErr != nil {
			return cli.Exit(fmt.Sprintf("%v (session stopped: %v)", err, runErr), exitCodeFor(runErr))
		}
		return cli.Exit(err.Error(), exitError)
	}

	if c.Bool("tui") {
		if err := r.RenderTUI(viewType, data); err != nil {
			return err
		}
	} else if err := r.Render(data); err != nil {
		return err
	}
	return sessionExit(runErr)
}
