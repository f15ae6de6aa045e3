package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tinykernel/kernel"
)

var killTimeout time.Duration

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Demonstrate killing a process blocked on a semaphore",
	Long: `Creates a semaphore with count 0, a process that blocks waiting on
it, then kills the blocked process and reports the semaphore's count
restored to account for the vanished waiter.`,
	Args: cobra.NoArgs,
	RunE: runKill,
}

func init() {
	rootCmd.AddCommand(killCmd)
	killCmd.Flags().DurationVar(&killTimeout, "timeout", 2*time.Second, "maximum wall time to wait for the blocked process to park")
}

func runKill(cmd *cobra.Command, args []string) error {
	rt := newRuntime()

	sid, err := rt.sems.SemCreate(0)
	if err != nil {
		return fmt.Errorf("semcreate: %w", err)
	}

	pid, err := rt.k.Create(func(a ...any) {
		_ = rt.sems.Wait(sid)
	}, 0, 30, "blocked")
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.clock.Run(ctx)

	if _, err := rt.k.Resume(pid); err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	if err := waitUntilBlocked(rt, sid, killTimeout); err != nil {
		return err
	}

	before, _ := rt.sems.SemCount(sid)
	fmt.Printf("sem count before kill: %d\n", before)

	if err := rt.k.Kill(pid); err != nil {
		return fmt.Errorf("kill: %w", err)
	}

	after, _ := rt.sems.SemCount(sid)
	fmt.Printf("sem count after kill:  %d\n", after)
	return nil
}

// waitUntilBlocked polls until sid has at least one waiter or timeout
// elapses.
func waitUntilBlocked(rt *runtime, sid kernel.SemID, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, nwaiters, err := rt.sems.SemInfo(sid); err == nil && nwaiters > 0 {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for a waiter on semaphore %d", sid)
}
