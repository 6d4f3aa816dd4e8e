package main

import (
	"fmt"
	"strconv"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/cicoord/cicoord/pkg/admission"
	"github.com/cicoord/cicoord/pkg/github"
)

type runsOpts struct {
	*rootOpts
	noCancel bool
}

func newRuns(parent *rootOpts) *runsOpts {
	return &runsOpts{rootOpts: parent}
}

func (opts *runsOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Coordinate the runs of a GitHub Actions workflow.",
	}
	defineGateFlags(opts.configFlags(cmd))

	await := &cobra.Command{
		Use:   "await <repo> <run-id>",
		Short: "Cancel runs superseded by this one, then wait for a slot.",
		Long: `Cancel runs superseded by this one, then wait for a slot.

Older in-progress runs of the same workflow on the same branch are
cancelled, unless --cancel=false. Then the run waits until it is among
the --max-concurrency lowest-numbered runs of the workflow in progress.
There is no timeout; the command returns once the run is admitted.`,
		Example: makeExample(
			`cicoord runs await "$GITHUB_REPOSITORY" "$GITHUB_RUN_ID"`,
			`cicoord runs await --max-concurrency=2 --no-cancel octo/repo 4711`,
		),
		RunE: opts.awaitRunE,
	}
	await.Flags().BoolVar(&opts.noCancel, "no-cancel", false, "do not cancel superseded runs; same as --cancel=false")
	cmd.AddCommand(await)
	return cmd
}

func (opts *runsOpts) awaitRunE(cmd *cobra.Command, args []string) error {
	if err := checkArgs(cmd, args, "a repository (owner/name)", "a run ID"); err != nil {
		return err
	}
	repo := args[0]
	runID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return newUsageError("run ID must be a number, got %q", args[1])
	}
	cfg := opts.config
	ctx := cmd.Context()
	logger := log.With(opts.logger, "component", "gate")

	client, err := github.NewClient(ctx, cfg.GitHubToken, cfg.GitHubAPIURL, &github.RateLimiters{
		RPS:    cfg.GitHubRPS,
		Burst:  cfg.GitHubBurst,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	registry, err := github.NewRegistry(client, repo, logger)
	if err != nil {
		return usageError{err}
	}

	logger.Log("info", "fetching run", "run_id", runID)
	current, err := registry.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	logger.Log("info", "found run", "run", current, "branch", current.Branch, "event", current.Event)
	if err := admission.CheckCurrent(current, cfg.AllowedEvents); err != nil {
		return err
	}

	if cfg.Cancel && !opts.noCancel {
		cancelled, err := admission.Supersede(ctx, registry, current, logger)
		if err != nil {
			return err
		}
		logger.Log("info", "cancelled superseded runs", "count", len(cancelled))
	}

	gate, err := admission.NewGate(registry, cfg.MaxConcurrency, admission.PollBudget{
		RequestsPerHour: cfg.RequestsPerHour,
		NextInLine:      cfg.NextInLinePoll,
		MinInterval:     cfg.MinPollInterval,
		MissingRetry:    cfg.MissingRunRetry,
	}, logger)
	if err != nil {
		return err
	}
	if err := gate.AwaitSlot(ctx, current); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "slot available for run %s\n", current)
	return nil
}
