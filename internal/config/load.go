package config

import (
	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// Load reads a Handle from a TOML file at path, applies defaults for any
// zero-valued fields TOML left untouched, then layers environment
// variables over the result - the same decode-then-env-override sequence
// the teacher's doc comment on Config prescribes.
func Load(path string) (*Handle, error) {
	h := New()
	if _, err := toml.DecodeFile(path, h); err != nil {
		return nil, errors.Wrap(err, "decoding config file")
	}
	if err := h.ApplyEnvironmentVariables(); err != nil {
		return nil, err
	}
	return h, nil
}
