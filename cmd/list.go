package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tinykernel/kernel"
)

var (
	listCount  int
	listFormat string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Create several processes at varying priorities and list their final states",
	Long: `Creates a handful of processes at descending priorities, each
sleeping a different number of ticks, runs the clock until they settle,
and reports every process table slot still in use.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().IntVar(&listCount, "count", 4, "number of processes to create")
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table, json)")
}

func runList(cmd *cobra.Command, args []string) error {
	rt := newRuntime()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.clock.Run(ctx)

	for i := 0; i < listCount; i++ {
		prio := 40 - i*5
		sleepTicks := int64(5 + i*3)
		name := fmt.Sprintf("worker-%d", i)

		pid, err := rt.k.Create(func(a ...any) {
			ticks := a[0].(int64)
			_ = rt.k.Sleep(ticks)
		}, 0, prio, name, sleepTicks)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := rt.k.Resume(pid); err != nil {
			return fmt.Errorf("resume %s: %w", name, err)
		}
	}

	time.Sleep(50 * time.Millisecond)

	procs := rt.k.Processes()
	if listFormat == "json" {
		return outputProcessesJSON(procs)
	}
	return outputProcessesTable(procs)
}

func outputProcessesTable(procs []kernel.ProcessInfo) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tNAME\tSTATE\tPRIO")
	for _, p := range procs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", p.PID, p.Name, p.State, p.Prio)
	}
	return w.Flush()
}

func outputProcessesJSON(procs []kernel.ProcessInfo) error {
	type item struct {
		PID   int32  `json:"pid"`
		Name  string `json:"name"`
		State string `json:"state"`
		Prio  int    `json:"prio"`
	}
	items := make([]item, len(procs))
	for i, p := range procs {
		items[i] = item{PID: int32(p.PID), Name: p.Name, State: p.State.String(), Prio: p.Prio}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}
