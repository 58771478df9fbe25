package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/submergedb/coldb"
	"github.com/submergedb/coldb/errors"
	"github.com/submergedb/coldb/internal/ioutil"
)

// inputColumn is one column of encode's JSON input. Values hold numbers for
// int and flo columns, strings for bin columns and booleans for bit columns.
type inputColumn struct {
	Label  string            `json:"label"`
	Type   coldb.LogicalType `json:"type"`
	Role   string            `json:"role,omitempty"`
	Values json.RawMessage   `json:"values"`
}

// column is an inputColumn with its values decoded.
type column struct {
	ints   []int64
	floats []float64
	bins   [][]byte
	bits   []bool
}

func (c *column) len() int {
	return max(len(c.ints), len(c.floats), len(c.bins), len(c.bits))
}

func decodeColumn(in inputColumn) (*column, error) {
	col := &column{}
	var err error
	switch in.Type {
	case coldb.Int:
		err = json.Unmarshal(in.Values, &col.ints)
	case coldb.Flo:
		err = json.Unmarshal(in.Values, &col.floats)
	case coldb.Bin:
		var strs []string
		err = json.Unmarshal(in.Values, &strs)
		for _, s := range strs {
			col.bins = append(col.bins, []byte(s))
		}
	case coldb.Bit:
		err = json.Unmarshal(in.Values, &col.bits)
	default:
		return nil, errors.Newf(errors.ErrTypeMismatch, "column %q has unknown type %s", in.Label, in.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding values of column %q", in.Label)
	}
	return col, nil
}

// writeBlock writes rows [lo, hi) of every column as one block.
func writeBlock(bw *coldb.BlockWriter, cols []inputColumn, decoded []*column, lo, hi int) error {
	for i, col := range decoded {
		l, h := min(lo, col.len()), min(hi, col.len())
		var err error
		switch cols[i].Type {
		case coldb.Int:
			err = bw.WriteInts(col.ints[l:h])
		case coldb.Flo:
			err = bw.WriteFloats(col.floats[l:h])
		case coldb.Bin:
			err = bw.WriteBins(col.bins[l:h])
		case coldb.Bit:
			err = bw.WriteBits(col.bits[l:h])
		}
		if err != nil {
			return errors.Wrapf(err, "column %q", cols[i].Label)
		}
	}
	return bw.Finish()
}

func newEncodeCommand(c *cli) *cobra.Command {
	var input string
	var annotate bool
	cmd := &cobra.Command{
		Use:   "encode <out>",
		Short: "Write a layer file from JSON columns.",
		Long: `Reads a JSON array of columns, each {"label", "type", "values"},
from stdin or --input and writes them to a new layer file, split into
blocks of block_rows rows.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("annotate") {
				c.cfg.Annotate = annotate
			}
			return c.encode(args[0], input)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON input file. Defaults to stdin.")
	cmd.Flags().BoolVar(&annotate, "annotate", false, "Print an annotated hexdump of the written file.")
	return cmd
}

func (c *cli) encode(out, input string) error {
	src := c.stdin
	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			return errors.WithStack(err)
		}
		defer f.Close()
		src = f
	}
	var cols []inputColumn
	if err := json.NewDecoder(src).Decode(&cols); err != nil {
		return errors.Wrap(err, "decoding input")
	}

	catalogue := make([]coldb.Column, len(cols))
	decoded := make([]*column, len(cols))
	var rows int
	for i, in := range cols {
		catalogue[i] = coldb.Column{Label: in.Label, Type: in.Type, Role: in.Role}
		col, err := decodeColumn(in)
		if err != nil {
			return err
		}
		decoded[i] = col
		rows = max(rows, col.len())
	}

	fw, err := ioutil.CreateFile(out)
	if err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			fw.Close()
			os.Remove(fw.Path())
		}
	}()
	opts := []coldb.Option{coldb.WithLogger(c.log.WithField("layer", out))}
	if c.cfg.Annotate {
		opts = append(opts, coldb.WithAnnotations())
	}
	lw, err := coldb.NewLayerWriter(fw, opts...)
	if err != nil {
		return err
	}
	if err := lw.SetCatalogue(catalogue); err != nil {
		return err
	}
	for lo := 0; lo < rows; lo += c.cfg.BlockRows {
		if err := writeBlock(lw.BeginBlock(), cols, decoded, lo, lo+c.cfg.BlockRows); err != nil {
			return err
		}
	}
	if err := lw.Finish(); err != nil {
		return err
	}
	var f *os.File
	if c.cfg.Annotate {
		f, _, err = fw.Reopen()
	} else {
		err = fw.Close()
	}
	if err != nil {
		return err
	}
	done = true
	c.log.Infof("wrote %s: %d rows in %d bytes", fw.Path(), rows, lw.Size())
	if f == nil {
		return nil
	}
	defer f.Close()
	buf, err := io.ReadAll(f)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = fmt.Fprint(c.stdout, lw.Hexdump(buf))
	return err
}
