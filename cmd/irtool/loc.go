package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/lowlevel01/ir"
	"github.com/lowlevel01/ir/locfile"
)

func newLocCommand(m *Main) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loc",
		Short: "Manage the location registry file given by --locs",
	}
	cmd.AddCommand(newLocAddCommand(m), newLocNameCommand(m), newLocShowCommand(m))
	return cmd
}

func newLocAddCommand(m *Main) *cobra.Command {
	var offset uint64
	var names []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a location and print its key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			tr, _ := tlog.SpawnFromContextAndWrap(cmd.Context(), "loc add", "path", m.LocsPath)
			defer tr.Finish("err", &err)

			return m.updateLocations(func(db *ir.LocationDB) error {
				var opts []ir.LocOption
				if cmd.Flags().Changed("offset") {
					opts = append(opts, ir.WithOffset(offset))
				}
				if len(names) > 0 {
					opts = append(opts, ir.WithName(names[0]))
				}

				key, err := db.AddLocation(opts...)
				if err != nil {
					return err
				}
				for _, name := range names[min(1, len(names)):] {
					if err := db.AddLocationName(key, name); err != nil {
						return err
					}
				}
				fmt.Fprintln(m.Stdout, key)
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&offset, "offset", 0, "offset of the location")
	cmd.Flags().StringSliceVarP(&names, "name", "n", nil, "name of the location (repeatable)")
	return cmd
}

func newLocNameCommand(m *Main) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "name KEY NAME",
		Short: "Attach a name to a location, or detach it with --remove",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.updateLocations(func(db *ir.LocationDB) error {
				key, err := parseLocKey(db, args[0])
				if err != nil {
					return err
				}
				if remove {
					return db.RemoveLocationName(key, args[1])
				}
				return db.AddLocationName(key, args[1])
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "detach the name instead")
	return cmd
}

func newLocShowCommand(m *Main) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print every location of the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := m.loadLocations()
			if err != nil {
				return err
			}
			fmt.Fprint(m.Stdout, db.String())
			return nil
		},
	}
}

// updateLocations loads the registry, applies fn and saves the result.
func (m *Main) updateLocations(fn func(db *ir.LocationDB) error) error {
	if m.LocsPath == "" {
		return errors.New("location registry path required (--locs)")
	}
	db, err := m.loadLocations()
	if err != nil {
		return err
	}
	if err := fn(db); err != nil {
		return err
	}
	return locfile.Save(m.LocsPath, db)
}

// parseLocKey reads a key as "loc_key_N", a plain index or a location name.
func parseLocKey(db *ir.LocationDB, s string) (ir.LocKey, error) {
	var i uint32
	if _, err := fmt.Sscanf(s, "loc_key_%d", &i); err == nil {
		return ir.LocKey(i), nil
	} else if _, err := fmt.Sscanf(s, "%d", &i); err == nil {
		return ir.LocKey(i), nil
	} else if key, ok := db.NameLocation(s); ok {
		return key, nil
	}
	return 0, errors.New("unknown location %q", s)
}
