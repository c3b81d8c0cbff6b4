package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ClientFile is the TOML form of the client settings. Unset keys stay nil
// so callers can layer the file under flags and over the environment.
type ClientFile struct {
	Endpoint      string            `toml:"endpoint,omitempty"`
	APIKey        string            `toml:"api_key,omitempty"`
	Debug         *bool             `toml:"debug,omitempty"`
	Disabled      *bool             `toml:"disabled,omitempty"`
	BatchSize     *int              `toml:"batch_size,omitempty"`
	FlushInterval string            `toml:"flush_interval,omitempty"`
	MaxPending    *int              `toml:"max_pending,omitempty"`
	Encoding      string            `toml:"encoding,omitempty"`
	Gzip          *bool             `toml:"gzip,omitempty"`
	DefaultTags   map[string]string `toml:"default_tags,omitempty"`
}

// LoadClientFile reads a client config file. A missing file yields an
// empty ClientFile and no error.
func LoadClientFile(path string) (ClientFile, error) {
	var cf ClientFile
	md, err := toml.DecodeFile(path, &cf)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ClientFile{}, nil
		}
		return ClientFile{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return ClientFile{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if cf.FlushInterval != "" {
		if _, err := cf.Interval(); err != nil {
			return ClientFile{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	return cf, nil
}

// Interval parses FlushInterval. The second result is nil when unset.
func (cf ClientFile) Interval() (*time.Duration, error) {
	if cf.FlushInterval == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(cf.FlushInterval)
	if err != nil {
		return nil, fmt.Errorf("flush_interval: %w", err)
	}
	if d < 0 {
		return nil, fmt.Errorf("flush_interval must not be negative, got %s", d)
	}
	return &d, nil
}
