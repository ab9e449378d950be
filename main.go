package main

import (
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/sky22333/svcmgr/cmd"
	"github.com/sky22333/svcmgr/internal/config"
	"github.com/sky22333/svcmgr/internal/version"
)

func main() {
	var cli humacli.CLI
	var current atomic.Pointer[app]

	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		hooks.OnStart(func() {
			a, err := newApp(opts, cli.Root(), os.Stdin)
			if err != nil {
				slog.Error("Failed to initialize", "error", err)
				os.Exit(1)
			}
			current.Store(a)

			if code := a.run(); code != 0 {
				os.Exit(code)
			}
		})

		hooks.OnStop(func() {
			if a := current.Load(); a != nil {
				a.shutdown()
			}
		})
	})

	root := cli.Root()
	root.Use = "svcmgr"
	root.Short = "Run and supervise a single executable"
	root.Long = `svcmgr launches one executable, streams its output as structured logs, ` +
		`and restarts it after failures within a bounded retry budget.`
	root.Version = version.Get().Version

	root.AddCommand(cmd.CreateCheckCmd())
	root.AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}
