// Package cmd implements the CLI front-end to the kernel's system-call
// table: each subcommand boots a fresh in-process kernel, drives
// it through one or two syscalls, and prints the result — there is no
// persistent daemon to attach to, since the kernel itself keeps no
// state beyond a single process's lifetime (all state is in memory).
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tinykernel/kernel"
	"tinykernel/klog"
	"tinykernel/mailbox"
	"tinykernel/semaphore"
	"tinykernel/syscall"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

var (
	globalLogFormat string
	globalDebug     bool
)

// rootCmd is the base command for the kernel CLI.
var rootCmd = &cobra.Command{
	Use:   "tinykernel",
	Short: "A small preemptive multitasking kernel",
	Long: `tinykernel drives a single in-process kernel instance through its
system calls from the command line: process creation, scheduling,
semaphores, and bounded message channels.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "log output format (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

func setupLogging() {
	level := slog.LevelInfo
	if globalDebug {
		level = slog.LevelDebug
	}
	klog.SetDefault(klog.New(os.Stderr, level, globalLogFormat == "json"))
}

// runtime bundles the kernel and its companion tables: every
// subcommand starts from a fresh one, since the kernel is purely
// in-memory and has no notion of surviving across CLI invocations.
type runtime struct {
	k        *kernel.Kernel
	sems     *semaphore.Table
	ports    *mailbox.PortRegistry
	syscalls *syscall.Table
	clock    *kernel.Clock
}

func newRuntime() *runtime {
	k := kernel.New()
	sems := semaphore.NewTable(k)
	return &runtime{
		k:        k,
		sems:     sems,
		ports:    mailbox.NewPortRegistry(sems),
		syscalls: syscall.NewTable(k, sems),
		clock:    kernel.NewClock(k),
	}
}
