package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/lowlevel01/ir"
)

func newSimplifyCommand(m *Main) *cobra.Command {
	var passes []string
	var jobs, maxIterations int
	var pretty bool

	cmd := &cobra.Command{
		Use:   "simplify [expr...]",
		Short: "Simplify expressions",
		Long: `Simplify each expression given as an argument, or each line of standard
input when no argument is given. Blank lines and lines starting with '#' are
skipped. Results are printed one per line, in input order.`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			tr, ctx := tlog.SpawnFromContextAndWrap(cmd.Context(), "simplify", "args", len(args))
			defer tr.Finish("err", &err)

			c, err := m.loadConfig()
			if err != nil {
				return err
			}
			sc := c.Simplifier
			sc.Passes = append(sc.Passes, passes...)
			if cmd.Flags().Changed("jobs") {
				sc.Jobs = jobs
			}
			if cmd.Flags().Changed("max-iterations") {
				sc.MaxIterations = maxIterations
			}

			s, err := sc.NewSimplifier()
			if err != nil {
				return err
			}
			db, err := m.loadLocations()
			if err != nil {
				return err
			}
			exprs, err := m.readExprs(db, args)
			if err != nil {
				return err
			}

			tr.Printw("simplifying", "n", len(exprs), "passes", s.ActivePasses(), "jobs", sc.Jobs)
			results, err := s.SimplifyAll(ctx, exprs, sc.Jobs)
			if err != nil {
				return errors.Wrap(err, "simplify")
			}

			var namer ir.LocNamer
			if pretty {
				namer = db
			}
			for _, e := range results {
				fmt.Fprintln(m.Stdout, ir.FormatExpr(e, namer))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&passes, "pass", "p", nil, "enable a simplifier pass (repeatable)")
	flags.IntVarP(&jobs, "jobs", "j", 0, "number of expressions simplified concurrently (0: no limit)")
	flags.IntVar(&maxIterations, "max-iterations", ir.DefaultMaxIterations, "rewrite bound per node")
	flags.BoolVar(&pretty, "pretty", false, "print locations by name")
	return cmd
}

// readExprs parses args, or the lines of standard input if args is empty.
func (m *Main) readExprs(db *ir.LocationDB, args []string) ([]ir.Expr, error) {
	lines := args
	if len(lines) == 0 {
		scanner := bufio.NewScanner(m.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "read input")
		}
	}

	p := m.parser(db)
	var exprs []ir.Expr
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := p.Parse(line)
		if err != nil {
			return nil, errors.Wrap(err, "expression %d", i+1)
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

// readExpr parses exactly one expression.
func (m *Main) readExpr(db *ir.LocationDB, args []string) (ir.Expr, error) {
	exprs, err := m.readExprs(db, args)
	if err != nil {
		return nil, err
	} else if len(exprs) != 1 {
		return nil, errors.New("expected one expression, got %d", len(exprs))
	}
	return exprs[0], nil
}
