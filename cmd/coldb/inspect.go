package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/submergedb/coldb"
	"github.com/submergedb/coldb/internal/ioutil"
)

type layerInfo struct {
	Version   int64          `json:"version"`
	Rows      int64          `json:"rows"`
	Cols      int64          `json:"cols"`
	Catalogue []coldb.Column `json:"catalogue,omitempty"`
	Blocks    []blockInfo    `json:"blocks"`
}

type blockInfo struct {
	Rows   int64       `json:"rows"`
	Tracks []trackInfo `json:"tracks"`
}

type trackInfo struct {
	Type       coldb.LogicalType `json:"type"`
	Rows       int               `json:"rows"`
	Implicit   bool              `json:"implicit,omitempty"`
	Lo         int64             `json:"lo"`
	Hi         int64             `json:"hi"`
	DictLen    int               `json:"dict_len,omitempty"`
	CodeChunks int               `json:"code_chunks,omitempty"`
}

func newInspectCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the metadata of a layer file as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.inspect(args[0])
		},
	}
}

func (c *cli) openLayer(path string) (*coldb.LayerReader, func() error, error) {
	f, size, err := ioutil.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	lr, err := coldb.OpenLayer(f, size, coldb.WithLogger(c.log.WithField("layer", path)))
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return lr, f.Close, nil
}

func (c *cli) inspect(path string) error {
	lr, closeFn, err := c.openLayer(path)
	if err != nil {
		return err
	}
	defer closeFn()

	info := layerInfo{
		Version:   lr.Version(),
		Rows:      lr.Rows(),
		Cols:      lr.Cols(),
		Catalogue: lr.Catalogue(),
		Blocks:    make([]blockInfo, lr.Blocks()),
	}
	for b := range info.Blocks {
		br, err := lr.Block(b)
		if err != nil {
			return err
		}
		bi := blockInfo{Rows: br.Rows(), Tracks: make([]trackInfo, br.Tracks())}
		for t := range bi.Tracks {
			tr, err := br.Track(t)
			if err != nil {
				return err
			}
			lo, hi, err := br.TrackRange(t)
			if err != nil {
				return err
			}
			bi.Tracks[t] = trackInfo{
				Type:       tr.Type(),
				Rows:       tr.Rows(),
				Implicit:   tr.Implicit(),
				Lo:         lo,
				Hi:         hi,
				DictLen:    tr.DictLen(),
				CodeChunks: tr.CodeChunks(),
			}
		}
		info.Blocks[b] = bi
	}
	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.stdout, string(out))
	return err
}
