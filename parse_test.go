package ir_test

import (
	"errors"
	"testing"

	"github.com/lowlevel01/ir"
	"github.com/stretchr/testify/require"
)

func TestParseExpr(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		a, b := id("RAX", 64), id("RBX", 64)
		for _, e := range []ir.Expr{
			num(0x10, 8),
			op(ir.OpAdd, a, b, num(-1, 64)),
			cond(op(ir.OpSlt, a, b), a, b),
			mem(op(ir.OpAdd, a, num(8, 64)), 32),
			compose(slice(a, 0, 32), num(0, 32)),
			ir.Must(ir.NewAssign(a, mem(ir.Must(ir.NewLoc(3, 64)), 64))),
			op(ir.OpParity, slice(a, 0, 8)),
			op("bswap", a),
		} {
			t.Run(e.String(), func(t *testing.T) {
				got, err := ir.ParseExpr(e.String())
				require.NoError(t, err)
				require.True(t, got.Equal(e), "got %s", got)
			})
		}
	})

	t.Run("Whitespace", func(t *testing.T) {
		got, err := ir.ParseExpr("  (+\n\t(id a 8)   (int 1 8) )  ")
		require.NoError(t, err)
		require.True(t, got.Equal(op(ir.OpAdd, id("a", 8), num(1, 8))))
	})

	t.Run("NamedLocation", func(t *testing.T) {
		db := ir.NewLocationDB()
		_, _ = db.AddLocation()
		key, err := db.AddLocation(ir.WithName("main"))
		require.NoError(t, err)

		p := &ir.Parser{Locations: db}
		got, err := p.Parse("(loc main 64)")
		require.NoError(t, err)
		require.True(t, got.Equal(ir.Must(ir.NewLoc(key, 64))))

		// Rendering through the registry prints the name back.
		require.Equal(t, "(loc main 64)", ir.FormatExpr(got, db))
	})

	t.Run("PrettyRoundTrip", func(t *testing.T) {
		db := ir.NewLocationDB()
		_, _ = db.AddLocation(ir.WithName("main"))
		_, _ = db.AddLocation(ir.WithOffset(0x401000))
		_, _ = db.AddLocation()
		_, _ = db.AddLocation(ir.WithName("has space"))
		_, _ = db.AddLocation(ir.WithName("7"))

		p := &ir.Parser{Locations: db}
		for key, want := range []string{
			"(loc main 64)",
			"(loc loc_0x401000 64)",
			"(loc loc_key_2 64)",
			"(loc 3 64)",
			"(loc 4 64)",
		} {
			e := ir.Must(ir.NewLoc(ir.LocKey(key), 64))
			text := ir.FormatExpr(e, db)
			require.Equal(t, want, text)

			got, err := p.Parse(text)
			require.NoError(t, err, "parse %s", text)
			require.True(t, got.Equal(e), "%s: got %s", text, got)
		}
	})

	t.Run("KeyForm", func(t *testing.T) {
		got, err := ir.ParseExpr("(loc loc_key_2 64)")
		require.NoError(t, err)
		require.True(t, got.Equal(ir.Must(ir.NewLoc(2, 64))), "got %s", got)
	})

	t.Run("ErrSyntax", func(t *testing.T) {
		for _, src := range []string{
			"",
			"(int 1)",
			"(id a 8",
			"(int 1 8) (int 2 8)",
			"(loc nowhere 64)",
			"(slice (id a 8) x 8)",
			"(loc loc_0x10 64)",
		} {
			_, err := ir.ParseExpr(src)
			var e *ir.ParseError
			require.True(t, errors.As(err, &e), "%q: %v", src, err)
		}
	})

	t.Run("ErrSizeMismatch", func(t *testing.T) {
		_, err := ir.ParseExpr("(+ (id a 8) (id b 16))")
		var pe *ir.ParseError
		require.True(t, errors.As(err, &pe), "err: %v", err)
		requireSizeMismatch(t, err)
	})
}
