// Command inspect checks signatures against library files on disk and edits the module toggles file.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/ZenLiuCN/holyhook/config"
	"github.com/ZenLiuCN/holyhook/host"
	"github.com/ZenLiuCN/holyhook/registry"
	"github.com/ZenLiuCN/holyhook/symbol"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("failure %s", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Usage = "holyhook inspector"
	app.Name = "inspect"
	app.Description = "verify byte signatures against library files and manage module toggles"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "module toggles file", Value: "holyhook.toml", EnvVars: []string{"HOLYHOOK_STORE"}},
	}
	app.Commands = []*cli.Command{
		{Name: "scan",
			Action: scan,
			Usage:  "count signature matches in the executable sections of library files, fails unless exactly one",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "pattern", Aliases: []string{"p"}, Required: true, Usage: `hex bytes with ?? wildcards, "55 8B EC ?? 56"`},
				&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "list every match"},
			},
			ArgsUsage: "FILE...",
		},
		{Name: "symbols",
			Action: symbols,
			Usage:  "list defined symbols of an ELF file",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "substring the name must contain"},
			},
			ArgsUsage: "FILE",
		},
		{Name: "modules", Action: modules, Usage: "list compiled-in modules and their toggles"},
		{Name: "enable", Action: toggle(true), Usage: "enable a module", ArgsUsage: "NAME"},
		{Name: "disable", Action: toggle(false), Usage: "disable a module", ArgsUsage: "NAME"},
		{Name: "debug", Action: debug, Usage: "set the debug level of a module", ArgsUsage: "NAME LEVEL"},
	}
	return app
}

func scan(ctx *cli.Context) (err error) {
	d := ctx.Bool("debug")
	p, err := symbol.ParsePattern(ctx.String("pattern"))
	if err != nil {
		return
	}
	files := ctx.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("missing library files")
	}
	limit := 2
	if ctx.Bool("all") {
		limit = 0
	}
	var errs []error
	for _, file := range files {
		var sections []symbol.Section
		if sections, err = symbol.FileSections(file); err != nil {
			errs = append(errs, err)
			continue
		}
		total := 0
		for _, s := range sections {
			if d {
				log.Printf("scan %s %s: %d bytes at %#x", file, s.Name, len(s.Data), s.Addr)
			}
			offsets := p.Find(s.Data, limit)
			total += len(offsets)
			for _, o := range offsets {
				fmt.Fprintf(ctx.App.Writer, "%s\t%s\t%#x\n", file, s.Name, s.Addr+uint64(o))
			}
		}
		fmt.Fprintf(ctx.App.Writer, "%s\t%d match(es) of %s\n", file, total, p)
		switch {
		case total == 0:
			errs = append(errs, fmt.Errorf("%s: pattern not found", file))
		case total > 1:
			errs = append(errs, fmt.Errorf("%s: pattern is ambiguous", file))
		}
	}
	return errors.Join(errs...)
}

func symbols(ctx *cli.Context) (err error) {
	if ctx.NArg() != 1 {
		return fmt.Errorf("want exactly one file")
	}
	t, err := symbol.OpenTable(ctx.Args().First())
	if err != nil {
		return
	}
	f := ctx.String("filter")
	for _, n := range t.Names() {
		if f != "" && !strings.Contains(n, f) {
			continue
		}
		v, _ := t.Lookup(n)
		_, exported := t.Exported(n)
		fmt.Fprintf(ctx.App.Writer, "%#x\t%t\t%s\n", v, exported, n)
	}
	return
}

func store(ctx *cli.Context) (*config.Store, error) {
	return config.OpenStore(ctx.String("config"))
}

func descriptor(name string) (d registry.Descriptor, err error) {
	var names []string
	for _, m := range host.Modules() {
		if d = m.Descriptor(); d.Name == name {
			return
		}
		names = append(names, d.Name)
	}
	return d, fmt.Errorf("unknown module %q, want one of %s", name, strings.Join(names, ", "))
}

func modules(ctx *cli.Context) (err error) {
	s, err := store(ctx)
	if err != nil {
		return
	}
	known := make([]string, 0, 5)
	for _, m := range host.Modules() {
		d := m.Descriptor()
		known = append(known, d.Name)
		fmt.Fprintf(ctx.App.Writer, "%s\tenabled=%t\tdebug=%d\tplatforms=%s\n", d.Name, s.Enabled(d.Name, d.DefaultEnabled), s.DebugLevel(d.Name), d.Compatibility)
	}
	for _, n := range s.Names() {
		if !slices.Contains(known, n) {
			log.Printf("%s: settings for unknown module %s", s.Path(), n)
		}
	}
	return
}

func toggle(enabled bool) cli.ActionFunc {
	return func(ctx *cli.Context) (err error) {
		if ctx.NArg() != 1 {
			return fmt.Errorf("want exactly one module name")
		}
		d, err := descriptor(ctx.Args().First())
		if err != nil {
			return
		}
		s, err := store(ctx)
		if err != nil {
			return
		}
		if ctx.Bool("debug") {
			log.Printf("%s enabled %t -> %t in %s", d.Name, s.Enabled(d.Name, d.DefaultEnabled), enabled, s.Path())
		}
		return s.SetEnabled(d.Name, enabled)
	}
}

func debug(ctx *cli.Context) (err error) {
	if ctx.NArg() != 2 {
		return fmt.Errorf("want module name and level")
	}
	d, err := descriptor(ctx.Args().Get(0))
	if err != nil {
		return
	}
	level, err := strconv.Atoi(ctx.Args().Get(1))
	if err != nil {
		return fmt.Errorf("level: %w", err)
	}
	s, err := store(ctx)
	if err != nil {
		return
	}
	return s.SetDebugLevel(d.Name, level)
}
