package main

import (
	"github.com/BurntSushi/toml"

	"github.com/submergedb/coldb"
	"github.com/submergedb/coldb/errors"
)

// Config is read from the TOML file named by --config. Flags override it.
type Config struct {
	// BlockRows is the number of rows encode puts in each block.
	BlockRows int    `toml:"block_rows"`
	Annotate  bool   `toml:"annotate"`
	LogLevel  string `toml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		BlockRows: coldb.MaxTrackRows,
		LogLevel:  "info",
	}
}

// loadConfig reads path over the defaults. An empty path yields the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Newf(errors.ErrOutOfRange, "unknown config key %q in %s", undecoded[0].String(), path)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.BlockRows < 1 || c.BlockRows > coldb.MaxTrackRows {
		return errors.Newf(errors.ErrOutOfRange, "block_rows %d outside [1, %d]", c.BlockRows, coldb.MaxTrackRows)
	}
	return nil
}
