package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tinykernel/kernel"
)

var stateSleep int64

var stateCmd = &cobra.Command{
	Use:   "state <pid>",
	Short: "Output the state of one process as JSON",
	Long: `Creates a single sleeping process and, once the clock has had a
chance to run it forward, reports as JSON the process table slot named
by <pid> (the created process, or 0 for the null process).`,
	Args: cobra.ExactArgs(1),
	RunE: runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.Flags().Int64Var(&stateSleep, "sleep", 10, "ticks the process sleeps before exiting")
}

func runState(cmd *cobra.Command, args []string) error {
	want, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid pid %q: %w", args[0], err)
	}

	rt := newRuntime()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.clock.Run(ctx)

	pid, err := rt.k.Create(func(a ...any) {
		ticks := a[0].(int64)
		_ = rt.k.Sleep(ticks)
	}, 0, 30, "inspected", stateSleep)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if _, err := rt.k.Resume(pid); err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	time.Sleep(20 * time.Millisecond)

	for _, p := range rt.k.Processes() {
		if int(p.PID) != want {
			continue
		}
		return printProcessState(p)
	}
	return fmt.Errorf("pid %d not found (it may already have exited)", want)
}

func printProcessState(p kernel.ProcessInfo) error {
	out := struct {
		PID   int32  `json:"pid"`
		Name  string `json:"name"`
		State string `json:"state"`
		Prio  int    `json:"prio"`
	}{
		PID:   int32(p.PID),
		Name:  p.Name,
		State: p.State.String(),
		Prio:  p.Prio,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
