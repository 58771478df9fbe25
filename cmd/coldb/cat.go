package main

import (
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/submergedb/coldb"
	"github.com/submergedb/coldb/errors"
)

func newCatCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <file> <column>",
		Short: "Print one column of a layer file as JSON.",
		Long: `Decodes every block of one column and prints its values as a JSON
array. The column is named by its catalogue label or by its number.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.cat(cmd, args[0], args[1])
		},
	}
}

// columnNumber resolves name against the catalogue, falling back to reading
// it as a column number.
func columnNumber(lr *coldb.LayerReader, name string) (int, coldb.LogicalType, error) {
	for i, col := range lr.Catalogue() {
		if col.Label == name {
			return i, col.Type, nil
		}
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 || int64(n) >= lr.Cols() {
		return 0, 0, errors.Newf(errors.ErrOutOfRange, "no column %q", name)
	}
	if cat := lr.Catalogue(); cat != nil {
		return n, cat[n].Type, nil
	}
	if lr.Blocks() == 0 {
		return n, coldb.Int, nil
	}
	br, err := lr.Block(0)
	if err != nil {
		return 0, 0, err
	}
	tr, err := br.Track(n)
	if err != nil {
		return 0, 0, err
	}
	return n, tr.Type(), nil
}

func (c *cli) cat(cmd *cobra.Command, path, name string) error {
	lr, closeFn, err := c.openLayer(path)
	if err != nil {
		return err
	}
	defer closeFn()

	col, typ, err := columnNumber(lr, name)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	var vals interface{}
	switch typ {
	case coldb.Int:
		vals, err = lr.ReadInts(ctx, col)
	case coldb.Flo:
		var floats []float64
		floats, err = lr.ReadFloats(ctx, col)
		vals = jsonFloats(floats)
	case coldb.Bit:
		vals, err = lr.ReadBits(ctx, col)
	case coldb.Bin:
		var bins [][]byte
		bins, err = lr.ReadBins(ctx, col)
		strs := make([]string, len(bins))
		for i, b := range bins {
			strs[i] = string(b)
		}
		vals = strs
	}
	if err != nil {
		return err
	}
	out, err := json.Marshal(vals)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.stdout, string(out))
	return err
}

// jsonFloats returns floats as JSON-encodable values. JSON has no NaN or
// infinities, so those become the strings "NaN", "+Inf" and "-Inf".
func jsonFloats(floats []float64) []interface{} {
	out := make([]interface{}, len(floats))
	for i, f := range floats {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		} else {
			out[i] = f
		}
	}
	return out
}
