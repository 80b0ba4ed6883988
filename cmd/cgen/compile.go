package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cgen/internal/cfg"
	"cgen/internal/codegen"
	"cgen/internal/codeobj"
	"cgen/internal/mcgen"
	"cgen/internal/observ"
	"cgen/internal/project"
	"cgen/internal/target"
)

var (
	flagAsm    bool
	flagObj    bool
	flagCode   bool
	flagEmitIR bool
	flagBits   bool
	flagTarget string
)

func init() {
	rootCmd.Flags().BoolVarP(&flagAsm, "asm", "S", false, "write assembly to <stem>.s")
	rootCmd.Flags().BoolVarP(&flagObj, "obj", "o", false, "write a relocatable object to <stem>.o")
	rootCmd.Flags().BoolVarP(&flagCode, "code", "c", false, "materialize the code object in memory")
	rootCmd.Flags().BoolVar(&flagEmitIR, "emit-ir", false, "dump the IR before and after optimization")
	rootCmd.Flags().BoolVar(&flagBits, "bits", false, "hex-dump the patched code object to stderr (with -c)")
	rootCmd.Flags().StringVar(&flagTarget, "target", "", "target architecture (default: cgen.toml, then native)")
	rootCmd.MarkFlagsMutuallyExclusive("asm", "obj", "code")
}

// stemOf derives the output filename stem from the input path: the
// pickle suffix is stripped, anything else falls back to "out".
func stemOf(input string) string {
	if strings.HasSuffix(input, ".pkl") {
		return strings.TrimSuffix(input, ".pkl")
	}
	return "out"
}

type emitMode int

const (
	emitListing emitMode = iota // assembly to stdout
	emitAsmFile
	emitObjFile
	emitCode
)

// selectEmit resolves the output-mode flags. A bits dump reads the
// materialized code object, so it promotes the default mode to -c and
// conflicts with the file outputs.
func selectEmit(asmFile, objFile, code, bits bool) (emitMode, error) {
	switch {
	case (asmFile || objFile) && bits:
		return 0, fmt.Errorf("the bits dump requires the in-memory code object; drop -S/-o or pass -c")
	case asmFile:
		return emitAsmFile, nil
	case objFile:
		return emitObjFile, nil
	case code || bits:
		return emitCode, nil
	default:
		return emitListing, nil
	}
}

func runCompile(cmd *cobra.Command, input string) error {
	conf, err := project.DiscoverConfig(filepath.Dir(input))
	if err != nil {
		return err
	}

	target.Initialize()
	tgtName := flagTarget
	if tgtName == "" {
		tgtName = conf.Build.Target
	}
	var tgt *target.Info
	if tgtName == "" {
		tgt, err = target.Native()
	} else {
		tgt, err = target.Lookup(tgtName)
	}
	if err != nil {
		return err
	}
	mode, err := selectEmit(flagAsm, flagObj, flagCode, flagBits || conf.Build.Bits)
	if err != nil {
		return err
	}

	timer := observ.NewTimer()
	phase := timer.Begin("decode")
	unit, err := cfg.DecodeFile(input)
	if err != nil {
		return err
	}
	if err := unit.Validate(); err != nil {
		return err
	}
	timer.End(phase, input)

	phase = timer.Begin("lower")
	cx := codegen.New(tgt)
	if err := cx.LowerUnit(unit); err != nil {
		return err
	}
	defer cx.EndModule()
	timer.End(phase, "")

	emitIR := flagEmitIR || conf.Build.EmitIR
	if emitIR {
		fmt.Fprintln(os.Stderr, "; IR before optimization")
		cx.Module().Print(os.Stderr)
	}

	phase = timer.Begin("optimize")
	g := mcgen.New(cx)
	g.BeginModule(cx.Module())
	defer g.EndModule()
	g.Optimize()
	timer.End(phase, "")

	if emitIR {
		fmt.Fprintln(os.Stderr, "; IR after optimization")
		cx.Module().Print(os.Stderr)
	}

	phase = timer.Begin("emit")
	switch mode {
	case emitAsmFile:
		err = g.DumpCode(stemOf(input), true)
	case emitObjFile:
		err = g.DumpCode(stemOf(input), false)
	case emitCode:
		err = materialize(cmd, g, cx, tgt, conf)
	default:
		err = g.DumpCode("-", true)
	}
	if err != nil {
		return err
	}
	timer.End(phase, "")

	if timings, _ := cmd.Flags().GetBool("timings"); timings {
		printPhaseTimings(os.Stderr, timer.Report())
	}
	return nil
}

func materialize(cmd *cobra.Command, g *mcgen.Gen, cx *codegen.Context, tgt *target.Info, conf *project.Config) error {
	if err := g.Compile(); err != nil {
		return err
	}
	co, err := codeobj.New(tgt, cx.ObjBuf().Bytes())
	if err != nil {
		return err
	}
	if flagBits || conf.Build.Bits {
		if err := co.Dump(os.Stderr, tgt.WordSz()); err != nil {
			return err
		}
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "code object: %d bytes\n", co.Size())
	}
	return nil
}
