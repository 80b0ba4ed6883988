package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cgen/internal/prof"
)

// setupProfiling reads the persistent profiling flags and starts the
// requested profilers. The returned cleanup stops them in reverse order
// and is safe to call more than once.
func setupProfiling(cmd *cobra.Command) (func(), error) {
	flags := cmd.Root().PersistentFlags()
	cpuPath, _ := flags.GetString("cpu-profile")
	memPath, _ := flags.GetString("mem-profile")
	tracePath, _ := flags.GetString("runtime-trace")

	if cpuPath != "" {
		if err := prof.StartCPU(cpuPath); err != nil {
			return nil, fmt.Errorf("start cpu profile: %w", err)
		}
	}
	if tracePath != "" {
		if err := prof.StartTrace(tracePath); err != nil {
			prof.StopCPU()
			return nil, fmt.Errorf("start runtime trace: %w", err)
		}
	}

	done := false
	cleanup := func() {
		if done {
			return
		}
		done = true
		if tracePath != "" {
			prof.StopTrace()
		}
		prof.StopCPU()
		if memPath != "" {
			if err := prof.WriteMem(memPath); err != nil {
				fmt.Fprintf(os.Stderr, "write heap profile: %v\n", err)
			}
		}
	}
	return cleanup, nil
}
