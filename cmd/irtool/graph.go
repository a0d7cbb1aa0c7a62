package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"tlog.app/go/tlog"

	"github.com/lowlevel01/ir"
)

func newGraphCommand(m *Main) *cobra.Command {
	var simplify, idom bool

	cmd := &cobra.Command{
		Use:   "graph [expr]",
		Short: "Print the expression graph in DOT format",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			tr, _ := tlog.SpawnFromContextAndWrap(cmd.Context(), "graph")
			defer tr.Finish("err", &err)

			db, err := m.loadLocations()
			if err != nil {
				return err
			}
			e, err := m.readExpr(db, args)
			if err != nil {
				return err
			}
			if simplify {
				if e, err = ir.Simplify(e); err != nil {
					return err
				}
			}

			g := ir.NewGraph(e)
			tr.Printw("graph", "nodes", g.Len())
			if !idom {
				return g.WriteDot(m.Stdout)
			}
			for _, n := range g.Nodes() {
				if d, ok := g.ImmediateDominator(n); ok {
					fmt.Fprintf(m.Stdout, "%s\t%s\n", n, d)
				} else {
					fmt.Fprintf(m.Stdout, "%s\t-\n", n)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&simplify, "simplify", "s", false, "simplify the expression first")
	cmd.Flags().BoolVar(&idom, "idom", false, "print the immediate dominator of every node instead")
	return cmd
}

func newDumpCommand(m *Main) *cobra.Command {
	return &cobra.Command{
		Use:   "dump [expr]",
		Short: "Dump the internal structure of an expression",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := m.loadLocations()
			if err != nil {
				return err
			}
			e, err := m.readExpr(db, args)
			if err != nil {
				return err
			}
			cfg := spew.ConfigState{Indent: "  ", DisableMethods: true, DisablePointerAddresses: true, DisableCapacities: true}
			cfg.Fdump(m.Stdout, e)
			return nil
		},
	}
}

func newPassesCommand(m *Main) *cobra.Command {
	return &cobra.Command{
		Use:   "passes",
		Short: "List the simplifier passes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := m.loadConfig()
			if err != nil {
				return err
			}
			s, err := c.Simplifier.NewSimplifier()
			if err != nil {
				return err
			}

			active := make(map[string]bool)
			for _, name := range s.ActivePasses() {
				active[name] = true
			}
			for _, name := range s.Passes() {
				mark := " "
				if active[name] {
					mark = "*"
				}
				fmt.Fprintf(m.Stdout, "%s %s\n", mark, name)
			}
			return nil
		},
	}
}
