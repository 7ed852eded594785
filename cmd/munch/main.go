package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/ext/tlflag"

	"github.com/slowlang/munch/compiler"
	"github.com/slowlang/munch/compiler/back"
	"github.com/slowlang/munch/compiler/ir"
	"github.com/slowlang/munch/compiler/samples"
)

func main() {
	targetsCmd := &cli.Command{
		Name:        "targets",
		Description: "list supported targets",
		Action:      targetsAct,
	}

	samplesCmd := &cli.Command{
		Name:        "samples",
		Description: "list sample programs",
		Action:      samplesAct,
	}

	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile sample programs and print the listing",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("arch", "amd64", "target architecture"),
			cli.NewFlag("colors", 0, "number of registers to allocate, all if zero"),
			cli.NewFlag("max-rounds", 0, "spill rounds limit, default if zero"),
			cli.NewFlag("stats", false, "print allocation statistics"),
		},
	}

	app := &cli.Command{
		Name:        "munch",
		Description: "munch is a tree IR code generation backend",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("log", "stderr", "log output file (or stderr)"),
			cli.NewFlag("verbose,v", "", "logger verbosity topics (regalloc, munch, dump_canon, dump_code, ...)"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			targetsCmd,
			samplesCmd,
			compileCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	w, err := tlflag.OpenWriter(c.String("log"))
	if err != nil {
		return errors.Wrap(err, "open log file")
	}

	tlog.DefaultLogger = tlog.New(w)

	tlog.SetVerbosity(c.String("verbose"))

	return nil
}

func targetsAct(c *cli.Command) error {
	for _, name := range compiler.Targets() {
		t, err := compiler.NewTarget(name, ir.NewEnv())
		if err != nil {
			return err
		}

		cat := t.Catalog()

		fmt.Printf("%-8s %2d registers  %3d templates\n", name, len(cat.Regs), cat.Len())
	}

	return nil
}

func samplesAct(c *cli.Command) error {
	for _, s := range samples.All {
		fmt.Printf("%-10s %s\n", s.Name, s.Doc)
	}

	return nil
}

func compileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	cfg := back.Config{
		K:         c.Int("colors"),
		MaxRounds: c.Int("max-rounds"),
	}

	names := c.Args
	if len(names) == 0 {
		for _, s := range samples.All {
			names = append(names, s.Name)
		}
	}

	for i, name := range names {
		res, err := compiler.CompileSample(ctx, c.String("arch"), name, cfg)
		if err != nil {
			return errors.Wrap(err, "compile %v", name)
		}

		if i != 0 {
			fmt.Printf("\n")
		}

		fmt.Printf("// sample %s, target %s\n", name, res.Target)

		if c.Bool("stats") {
			for _, f := range res.Funcs {
				fmt.Printf("// %v: frame %d, rounds %d, spilled %d, coalesced %d\n",
					f.Frame.Label, f.Frame.Size, f.Alloc.Rounds, len(f.Alloc.Spilled), len(f.Alloc.Coalesced))
			}
		}

		fmt.Printf("%s", res.Append(nil))
	}

	return nil
}
