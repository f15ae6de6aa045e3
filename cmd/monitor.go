package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tinykernel/kernel"
	"tinykernel/klog"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive shell driving a kernel instance one keystroke at a time",
	Long: `A small "kshell": puts stdin into raw mode (when it is a terminal)
and reads single-key commands, creating, resuming, and killing
processes against one live kernel instance while a colorized event
stream reports scheduler activity separately from the structured log.

Keys: c=create  k=kill last created  l=list  d=dump recent kernel events  q=quit`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	events := charmlog.NewWithOptions(os.Stdout, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "kshell",
	})

	fd := int(os.Stdin.Fd())
	raw := term.IsTerminal(fd)
	var oldState *term.State
	if raw {
		var err error
		oldState, err = term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("make terminal raw: %w", err)
		}
		defer term.Restore(fd, oldState)
	} else {
		events.Warn("stdin is not a terminal, running non-interactively from piped input")
	}

	rt := newRuntime()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.clock.Run(ctx)

	events.Info("kernel booted", "nproc", kernel.NPROC, "nsem", kernel.NSEM)

	reader := bufio.NewReader(os.Stdin)
	var lastPID kernel.ProcID = kernel.NullProc
	haveLast := false

	for {
		b, err := reader.ReadByte()
		if err != nil {
			return nil
		}

		switch b {
		case 'c':
			pid, err := rt.k.Create(func(a ...any) {
				_ = rt.k.Sleep(20)
			}, 0, 30, "kshell-proc")
			if err != nil {
				events.Error("create failed", "err", err)
				continue
			}
			if _, err := rt.k.Resume(pid); err != nil {
				events.Error("resume failed", "err", err)
				continue
			}
			lastPID, haveLast = pid, true
			events.Info("process created", "pid", pid)

		case 'k':
			if !haveLast {
				events.Warn("no process to kill yet")
				continue
			}
			if err := rt.k.Kill(lastPID); err != nil {
				events.Error("kill failed", "pid", lastPID, "err", err)
				continue
			}
			events.Info("process killed", "pid", lastPID)

		case 'l':
			for _, p := range rt.k.Processes() {
				events.Info("process", "pid", p.PID, "name", p.Name, "state", p.State.String(), "prio", p.Prio)
			}

		case 'd':
			for _, e := range klog.Recent(16) {
				events.Info("trace", "event", e.String())
			}

		case 'q':
			events.Info("bye")
			return nil

		default:
			events.Warn("unrecognized key", "key", string(rune(b)))
		}
	}
}
