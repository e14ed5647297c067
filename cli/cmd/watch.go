package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tankreplay/cli/reader"
	"github.com/justapithecus/tankreplay/cli/render"
	"github.com/justapithecus/tankreplay/cli/tui"
	"github.com/justapithecus/tankreplay/runtime"
	"github.com/justapithecus/tankreplay/store"
)

// WatchCommand returns the watch command.
// Watch ingests a replay until the match finishes or a limit is reached,
// then prints the session summary.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:   "watch",
		Usage:  "Ingest a replay until the match finishes and print the summary",
		Flags:  append(ReadOnlyFlags(), SessionFlags()...),
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	tuiMode := c.Bool("tui")
	sess, err := openSession(c, cfg, tuiMode)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signalContext(c.Context)
	defer stop()

	rd := reader.NewStateReader(sess.State(), sess.Meta())

	var run sessionRun
	if tuiMode {
		run, err = watchWithTUI(ctx, sess, rd)
		if err != nil {
			return err
		}
	} else {
		run.result, run.err = sess.Run(ctx)
		if err := r.Render(rd.Summary()); err != nil {
			return err
		}
	}

	writeReport(c, sess, run.result, run.err)
	return sessionExit(run.err)
}

// sessionRun is what Session.Run returned.
type sessionRun struct {
	result *runtime.SessionResult
	err    error
}

// watchWithTUI runs the session under the live view. Quitting the view
// cancels the session.
func watchWithTUI(ctx context.Context, sess *runtime.Session, rd *reader.StateReader) (sessionRun, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var run sessionRun
	done := make(chan struct{})
	go func() {
		defer close(done)
		run.result, run.err = sess.Run(ctx)
	}()

	quit, tuiErr := tui.RunWatchTUI(stateWatchSource{StateReader: rd, state: sess.State()}, done)
	if quit || tuiErr != nil {
		cancel()
	}
	<-done
	if tuiErr != nil {
		return run, fmt.Errorf("tui failed: %w", tuiErr)
	}
	return run, nil
}

// stateWatchSource adapts a reader and its state to tui.WatchSource.
type stateWatchSource struct {
	*reader.StateReader
	state *store.State
}

func (s stateWatchSource) Changed() <-chan struct{} {
	return s.state.Changed()
}
