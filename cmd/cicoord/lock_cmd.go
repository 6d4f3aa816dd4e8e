package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cicoord/cicoord/pkg/lock"
)

type lockOpts struct {
	*rootOpts
	noWait bool
}

func newLock(parent *rootOpts) *lockOpts {
	return &lockOpts{rootOpts: parent}
}

func (opts *lockOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Acquire or release a lock kept in a key/value store.",
		Long: `Acquire or release a lock kept in a key/value store.

The lock is a lease naming its holder and when it was taken. A lease
older than --deadlock-timeout is taken over, so a holder that dies
without releasing blocks others for at most that long.`,
	}
	defineStoreFlags(opts.configFlags(cmd))
	defineLockFlags(opts.configFlags(cmd))

	acquire := &cobra.Command{
		Use:   "acquire <process-id>",
		Short: "Acquire the lock for a process, waiting for it by default.",
		Example: makeExample(
			"cicoord lock acquire --s3-bucket=ci-locks run-1234",
			"cicoord lock acquire --store=redis --redis-addr=redis:6379 --no-wait run-1234",
		),
		RunE: opts.acquireRunE,
	}
	acquire.Flags().BoolVar(&opts.noWait, "no-wait", false, "make a single attempt; same as --wait=false")

	release := &cobra.Command{
		Use:   "release <process-id>",
		Short: "Release the lock, if the process holds it.",
		RunE:  opts.releaseRunE,
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "Show who holds the lock.",
		RunE:  opts.statusRunE,
	}
	cmd.AddCommand(acquire, release, status)
	return cmd
}

func (opts *lockOpts) newLock() (*lock.Lock, func(), error) {
	store, done, err := newStore(opts.config, opts.logger)
	if err != nil {
		return nil, nil, err
	}
	return lock.New(store, opts.config.LockFile, opts.logger, lock.WithSettleWindow(opts.config.LockSettleWindow)), done, nil
}

func processID(cmd *cobra.Command, args []string) (string, error) {
	if err := checkArgs(cmd, args, "a process ID"); err != nil {
		return "", err
	}
	if args[0] == "" {
		return "", newUsageError("%s: the process ID must not be empty", cmd.CommandPath())
	}
	return args[0], nil
}

func (opts *lockOpts) acquireRunE(cmd *cobra.Command, args []string) error {
	owner, err := processID(cmd, args)
	if err != nil {
		return err
	}
	l, done, err := opts.newLock()
	if err != nil {
		return err
	}
	defer done()

	acquired, err := l.Acquire(cmd.Context(), owner, lock.AcquireOptions{
		Wait:            opts.config.LockWait && !opts.noWait,
		DeadlockTimeout: opts.config.LockDeadlockTimeout,
		PollInterval:    opts.config.LockPollInterval,
	})
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("failed to acquire lock %s", l)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "lock %s acquired by %s\n", l, owner)
	return nil
}

func (opts *lockOpts) releaseRunE(cmd *cobra.Command, args []string) error {
	owner, err := processID(cmd, args)
	if err != nil {
		return err
	}
	l, done, err := opts.newLock()
	if err != nil {
		return err
	}
	defer done()

	released, err := l.Release(cmd.Context(), owner)
	if err != nil {
		return err
	}
	if released {
		fmt.Fprintf(cmd.OutOrStdout(), "lock %s released by %s\n", l, owner)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "lock %s not held by %s; nothing to release\n", l, owner)
	}
	return nil
}

func (opts *lockOpts) statusRunE(cmd *cobra.Command, args []string) error {
	if err := checkArgs(cmd, args); err != nil {
		return err
	}
	l, done, err := opts.newLock()
	if err != nil {
		return err
	}
	defer done()

	lease, held, err := l.Holder(cmd.Context())
	if err != nil {
		return err
	}
	if !held {
		fmt.Fprintf(cmd.OutOrStdout(), "lock %s is free\n", l)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "lock %s held by %s since %s\n", l, lease.Owner, lease.AcquiredAt.UTC().Format(time.RFC3339))
	return nil
}

func makeExample(examples ...string) string {
	var buf strings.Builder
	for _, ex := range examples {
		fmt.Fprintf(&buf, "  %s\n", ex)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
