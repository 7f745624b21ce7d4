package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/runger/bikeshare/internal/config"
	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/intake"
)

var (
	submitLocal  bool
	submitSource string
)

// errRunFailed marks a run that completed with a failure outcome. The reply
// has already been printed.
var errRunFailed = errors.New("run failed")

var submitCmd = &cobra.Command{
	Use:   "submit <operation> [response...]",
	Short: "Submit a checkout or return form response",
	Long: `Submit one form response to the pipeline.

Responses are given in form order. For checkout: email, bike, the two
confirmations. For return: email, bike, the two confirmations, issue
report, and optionally the friend's email.

The event goes to the running daemon when its socket is reachable;
otherwise, or with --local, it runs in this process.

Examples:
  bikeshare submit checkout a@inst.edu Trek100 yes yes
  bikeshare submit return a@inst.edu Trek100 yes yes "" --source Return!R7`,
	GroupID: groupPipeline,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runSubmit,
}

func init() {
	submitCmd.Flags().BoolVar(&submitLocal, "local", false, "run in this process even when the daemon is up")
	submitCmd.Flags().StringVar(&submitSource, "source", "", "cell reference of the submitted row, marked with the outcome")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	raw := domain.RawEvent{
		Operation:   args[0],
		Responses:   args[1:],
		SourceRange: submitSource,
		SubmittedAt: time.Now(),
	}

	reply, err := submit(cmd.Context(), raw)
	if err != nil {
		return err
	}
	printReply(cmd.OutOrStdout(), reply)
	if !reply.OK {
		return fmt.Errorf("%w: %s", errRunFailed, reply.Code)
	}
	return nil
}

func submit(ctx context.Context, raw domain.RawEvent) (intake.Reply, error) {
	cfg, paths, err := loadConfig()
	if err != nil {
		return intake.Reply{}, err
	}

	if !submitLocal {
		if c := dialDaemon(ctx, cfg, paths); c != nil {
			defer c.Close()
			return c.Submit(ctx, raw)
		}
	}

	env, err := openEnv()
	if err != nil {
		return intake.Reply{}, err
	}
	defer env.Close()
	return intake.NewReply(env.Orchestrator.Handle(ctx, raw)), nil
}

// dialDaemon returns a client for the running daemon, or nil when none
// answers on the configured socket.
func dialDaemon(ctx context.Context, cfg *config.Config, paths *config.Paths) *intake.Client {
	sock := cfg.SocketPath(paths)
	if _, err := os.Stat(sock); err != nil {
		return nil
	}
	c, err := intake.NewClient(ctx, sock)
	if err != nil {
		return nil
	}
	return c
}

func printReply(w io.Writer, r intake.Reply) {
	outcome := okStyle.Render("ok")
	if !r.OK {
		outcome = errStyle.Render("failed")
	}
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render(r.Operation), outcome)
	fmt.Fprintf(w, "  %s %s\n", keyStyle.Render("code:   "), r.Code)
	fmt.Fprintf(w, "  %s %s\n", keyStyle.Render("phase:  "), r.Phase)
	if r.EventKey != "" {
		fmt.Fprintf(w, "  %s %s\n", keyStyle.Render("event:  "), dimStyle.Render(r.EventKey))
	}
	fmt.Fprintf(w, "  %s %s\n", keyStyle.Render("run:    "), dimStyle.Render(r.RunID))
	if r.Message != "" {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}
