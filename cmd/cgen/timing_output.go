package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"cgen/internal/observ"
)

var stageNameColor = color.New(color.FgGreen)

func printPhaseTimings(out io.Writer, report observ.Report) {
	if out == nil {
		return
	}
	for _, p := range report.Phases {
		fmt.Fprintf(out, "%s %.1f ms\n", stageNameColor.Sprint(p.Name), p.DurationMS)
	}
	fmt.Fprintf(out, "%s %.1f ms\n", stageNameColor.Sprint("total"), report.TotalMS)
}
