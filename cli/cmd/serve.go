package cmd

import (
	"context"
	"fmt"
	"net"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/tankreplay/cli/config"
	"github.com/justapithecus/tankreplay/feed"
)

// ServeCommand returns the serve command.
// Serve runs a session while exposing its history to renderers over
// HTTP and websocket. The feed keeps serving after the match finishes
// until interrupted, unless --exit-on-finish is set.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Ingest a replay while serving the renderer feed",
		Flags: append(SessionFlags(),
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Feed listen address",
				Value: feed.DefaultAddr,
			},
			&cli.BoolFlag{
				Name:  "allow-remote",
				Usage: "Accept feed clients from non-loopback addresses",
			},
			&cli.BoolFlag{
				Name:  "exit-on-finish",
				Usage: "Stop serving once the match finishes",
			},
		),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	sess, err := openSession(c, cfg, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	addr := resolveString(c, "addr", configVal(cfg, func(c *config.Config) string { return c.Serve.Addr }))
	srv := feed.NewServer(sess.State(), sess.Meta(), sess.Collector(), sess.Logger(), feed.Config{
		Addr:        addr,
		AllowRemote: resolveBool(c, "allow-remote", configVal(cfg, func(c *config.Config) bool { return c.Serve.AllowRemote })),
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot listen on %s: %v", addr, err), exitConfig)
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	// A failing feed stops the session as well.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	srvCtx, cancelSrv := context.WithCancel(ctx)
	defer cancelSrv()

	srvErr := make(chan error, 1)
	go func() {
		err := srv.Serve(srvCtx, ln)
		if err != nil {
			cancelRun()
		}
		srvErr <- err
	}()

	result, runErr := sess.Run(runCtx)
	writeReport(c, sess, result, runErr)

	if runErr == nil && !c.Bool("exit-on-finish") {
		sess.Logger().Info("match finished; serving history until interrupted", map[string]any{"addr": ln.Addr().String()})
		select {
		case <-ctx.Done():
		case err := <-srvErr:
			srvErr <- err
		}
	}

	cancelSrv()
	if err := <-srvErr; err != nil {
		return fmt.Errorf("feed server failed: %w", err)
	}
	return sessionExit(runErr)
}
