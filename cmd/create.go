package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tinykernel/kernel"
)

var (
	createName    string
	createPrio    int
	createSleep   int64
	createTimeout time.Duration
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create and run a single process",
	Long: `Create a process at the given priority that sleeps for the given
number of ticks, then exits. The kernel's clock runs until the process
exits or the timeout elapses.`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&createName, "name", "proc", "process name")
	createCmd.Flags().IntVar(&createPrio, "prio", 30, "process priority")
	createCmd.Flags().Int64Var(&createSleep, "sleep", 10, "ticks the process sleeps before exiting")
	createCmd.Flags().DurationVar(&createTimeout, "timeout", 2*time.Second, "maximum wall time to wait for the process to exit")
}

func runCreate(cmd *cobra.Command, args []string) error {
	rt := newRuntime()

	pid, err := rt.k.Create(func(a ...any) {
		ticks := a[0].(int64)
		_ = rt.k.Sleep(ticks)
	}, 0, createPrio, createName, createSleep)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	fmt.Printf("created pid=%d name=%q prio=%d\n", pid, createName, createPrio)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.clock.Run(ctx)

	if _, err := rt.k.Resume(pid); err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	if err := waitForExit(rt, pid, createTimeout); err != nil {
		return err
	}
	fmt.Printf("pid=%d exited at tick=%d\n", pid, rt.k.Ticks())
	return nil
}

// waitForExit polls until pid's slot is freed or timeout elapses.
// There is no blocking "wait for exit" syscall, so CLI
// demonstrations poll the process table the way a shell script might
// poll a pidfile.
func waitForExit(rt *runtime, pid kernel.ProcID, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := rt.k.GetPrio(pid); err != nil {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for pid %d to exit", pid)
}
