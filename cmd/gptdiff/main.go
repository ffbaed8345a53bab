package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"

	"github.com/ernop/gpt-webdiff/internal/cli"
	"github.com/ernop/gpt-webdiff/internal/logger"
)

func main() {
	exitCode := run(os.Args[1:], os.Environ(), ".")
	os.Exit(exitCode)
}

// run executes one command and returns the process exit code. It is
// separated from main() so tests can drive it.
func run(args []string, environ []string, workDir string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Environ: environ,
		WorkDir: workDir,
	}
	return execute(ctx, app, args, os.Stderr)
}

func execute(ctx context.Context, app *cli.App, args []string, stderr io.Writer) (code int) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause := errors.Newf("panic: %v", r)
		fmt.Fprintln(stderr, "Error:", cause)
		if svc := app.Services(); svc != nil {
			svc.Log.Error("Unexpected crash",
				logger.String("command", commandLine(args)),
				logger.String("stack", fmt.Sprintf("%+v", cause)))
			_ = svc.Log.Sync()
		}
		app.ReportCrash(ctx, commandLine(args), cause)
		code = cli.ExitCrash
	}()

	root := cli.NewRootCommand(app)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return cli.ExitOK
	}

	fmt.Fprintln(stderr, "Error:", err)
	if hint := errors.FlattenHints(err); hint != "" {
		fmt.Fprintln(stderr, "Hint:", hint)
	}
	return cli.ExitCode(err)
}

func commandLine(args []string) string {
	return strings.TrimSpace("gptdiff " + strings.Join(args, " "))
}
