// Package config models config.toml: the target architecture, the set of
// configured repositories, and the unsafe-operation opt-ins.
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Error reports a config.toml that failed sanity validation.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "config: " + e.Msg }

// Mirror is either a single repository URL or a ranked list of mirrors to
// be benchmarked by `apm bench`, matching config.toml's untagged
// `repo.<name>.url` value.
type Mirror struct {
	Single   string
	Multiple []string
}

// URL returns the mirror to use by default: the single URL, or the first
// (highest-preference) entry of a multi-mirror list.
func (m Mirror) URL() (string, error) {
	if m.Single != "" {
		return m.Single, nil
	}
	if len(m.Multiple) > 0 {
		return m.Multiple[0], nil
	}
	return "", errors.New("repository has no configured mirror URL")
}

// UnmarshalTOML implements untagged single-or-list decoding for the `url`
// key, mirroring the Rust `Mirror` enum's serde(untagged) representation.
func (m *Mirror) UnmarshalTOML(v interface{}) error {
	switch t := v.(type) {
	case string:
		m.Single = t
	case []interface{}:
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return errors.New("mirror list entries must be strings")
			}
			m.Multiple = append(m.Multiple, s)
		}
	default:
		return errors.Errorf("unsupported mirror value %T", v)
	}
	return nil
}

// RepoConfig is one `[repo.<name>]` table.
type RepoConfig struct {
	URL          Mirror   `toml:"url"`
	Distribution string   `toml:"distribution"`
	Components   []string `toml:"components"`
	Keys         []string `toml:"keys"`
	// Preferred, when set, is the mirror URL `apm bench` last selected as
	// fastest; Refresh prefers it over Multiple[0] when present.
	Preferred string `toml:"preferred,omitempty"`
}

var keyFilenameChar = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// CheckSanity validates that every entry in Keys is a bare filename (no
// path traversal) within the config's key directory.
func (r RepoConfig) CheckSanity() error {
	if r.Distribution == "" {
		return &Error{Msg: "repository is missing a distribution"}
	}
	for _, k := range r.Keys {
		if !keyFilenameChar.MatchString(k) {
			return &Error{Msg: "invalid key filename: " + k}
		}
	}
	return nil
}

// EffectiveURL returns Preferred if set, else the Mirror's default.
func (r RepoConfig) EffectiveURL() (string, error) {
	if r.Preferred != "" {
		return r.Preferred, nil
	}
	return r.URL.URL()
}

// UnsafeConfig carries the opt-in flags that relax default safety
// behavior; absent entirely, every one of these defaults to false.
type UnsafeConfig struct {
	PurgeOnRemove      bool `toml:"purge_on_remove"`
	UnsafeIO           bool `toml:"unsafe_io"`
	AllowRemoveEssential bool `toml:"allow_remove_essential"`
}

// Config is the parsed contents of config.toml.
type Config struct {
	Arch   string                `toml:"arch"`
	Repo   map[string]RepoConfig `toml:"repo"`
	Unsafe *UnsafeConfig         `toml:"unsafe"`
}

// CheckSanity validates the whole config: a non-empty Arch and every
// repository individually.
func (c Config) CheckSanity() error {
	if strings.TrimSpace(c.Arch) == "" {
		return &Error{Msg: "arch must be set"}
	}
	for name, r := range c.Repo {
		if err := r.CheckSanity(); err != nil {
			return errors.Wrapf(err, "repo %q", name)
		}
	}
	return nil
}

// Load reads and validates config.toml at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}
	var c Config
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(err, "parsing config file")
	}
	if err := c.CheckSanity(); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetPreferredMirror rewrites the `preferred` key of repo `name` in the
// file at path, keeping every other key and value. The document is
// decoded and re-encoded as a whole, so comments and the original layout
// are not kept. Used by `apm bench` to persist its fastest-mirror result.
func SetPreferredMirror(path, name, url string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]interface{}
	if err := toml.Unmarshal(b, &doc); err != nil {
		return err
	}
	repos, _ := doc["repo"].(map[string]interface{})
	if repos == nil {
		return errors.Errorf("no [repo.%s] table in config", name)
	}
	tbl, ok := repos[name].(map[string]interface{})
	if !ok {
		return errors.Errorf("no [repo.%s] table in config", name)
	}
	tbl["preferred"] = url
	out, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
