package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tankreplay/ipc"
)

// StreamCommand returns the stream command.
// Stream runs a session and writes length-prefixed msgpack frames to
// stdout for a renderer subprocess. Logs go to stderr.
func StreamCommand() *cli.Command {
	return &cli.Command{
		Name:   "stream",
		Usage:  "Ingest a replay while writing msgpack frames to stdout",
		Flags:  SessionFlags(),
		Action: streamAction,
	}
}

func streamAction(c *cli.Context) error {
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

	// A broken stdout stops the session as well.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	enc := ipc.NewFrameEncoder(c.App.Writer)
	streamErr := make(chan error, 1)
	go func() {
		err := ipc.Stream(streamCtx, sess.State(), sess.Meta(), enc)
		if err != nil && !errors.Is(err, context.Canceled) {
			cancelRun()
		}
		streamErr <- err
	}()

	result, runErr := sess.Run(runCtx)
	writeReport(c, sess, result, runErr)

	// Without a finish the stream never sees an outcome frame.
	if runErr != nil {
		cancelStream()
	}
	if err := <-streamErr; err != nil && !errors.Is(err, context.Canceled) {
		return cli.Exit(fmt.Sprintf("frame stream failed: %v", err), exitError)
	}
	return sessionExit(runErr)
}
