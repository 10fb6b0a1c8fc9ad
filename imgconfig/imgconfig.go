// Package imgconfig loads the two configuration keys the pipeline core
// consumes (spec. §6.5): cache_root and cache_default_max_files.
//
// The grammar is the ad-hoc one the original oip.conf loader understood:
// "key=value" pairs, separated by ';' or a newline, with values that may
// be comma-separated arrays. No third-party config library matches this
// exact grammar, so it is parsed by hand here — see DESIGN.md.
package imgconfig

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Skryldev/oipipe/imgerr"
)

// Config is the configuration the pipeline core reads at setup.
type Config struct {
	// CacheRoot is the directory under which every stage's cache
	// subdirectory is created.
	CacheRoot string
	// CacheDefaultMaxFiles is the default capacity assigned to a cache
	// when cache_create does not receive an explicit override.
	CacheDefaultMaxFiles int
}

// Default returns the conventional defaults used when no config file is
// supplied.
func Default() Config {
	return Config{
		CacheRoot:            "plugins/cache",
		CacheDefaultMaxFiles: 20,
	}
}

// Validate returns an error if c cannot be used to set up the cache store.
func Validate(c Config) error {
	if strings.TrimSpace(c.CacheRoot) == "" {
		return fmt.Errorf("imgconfig: cache_root must not be empty")
	}
	if c.CacheDefaultMaxFiles <= 0 {
		return fmt.Errorf("imgconfig: cache_default_max_files must be positive")
	}
	return nil
}

// recognizedKeys is the exact set the core consumes (spec. §6.5): any
// other key is rejected rather than silently ignored, matching the
// original loader's config_param_is_valid behaviour.
var recognizedKeys = map[string]bool{
	"cache_root":              true,
	"cache_default_max_files": true,
}

// Parse parses the ad-hoc grammar from raw text: "key=value" statements
// separated by ';' or '\n'; a value may itself be a comma-separated list,
// in which case only its first element is meaningful to the two keys the
// core understands (arrays exist in the grammar for other, external
// consumers of the same file).
func Parse(raw string) (Config, error) {
	cfg := Default()

	for _, stmt := range splitStatements(raw) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		key, value, err := parseStatement(stmt)
		if err != nil {
			return Config{}, imgerr.Wrap(imgerr.CategoryInvalidInput, "imgconfig.parse", err)
		}
		if !recognizedKeys[key] {
			return Config{}, imgerr.New(imgerr.CategoryInvalidInput, "imgconfig.parse",
				fmt.Errorf("unrecognized configuration key %q", key))
		}

		switch key {
		case "cache_root":
			first := firstArrayElement(value)
			if first == "" {
				return Config{}, imgerr.New(imgerr.CategoryInvalidInput, "imgconfig.parse",
					fmt.Errorf("cache_root must not be empty"))
			}
			cfg.CacheRoot = first
		case "cache_default_max_files":
			n, err := strconv.Atoi(strings.TrimSpace(firstArrayElement(value)))
			if err != nil || n <= 0 {
				return Config{}, imgerr.New(imgerr.CategoryInvalidInput, "imgconfig.parse",
					fmt.Errorf("cache_default_max_files must be a positive integer: %q", value))
			}
			cfg.CacheDefaultMaxFiles = n
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, imgerr.New(imgerr.CategoryInvalidInput, "imgconfig.parse", err)
	}
	return cfg, nil
}

// splitStatements splits raw on both ';' and '\n', the two separators the
// grammar allows interchangeably.
func splitStatements(raw string) []string {
	raw = strings.ReplaceAll(raw, "\n", ";")
	return strings.Split(raw, ";")
}

func parseStatement(stmt string) (key, value string, err error) {
	idx := strings.IndexByte(stmt, '=')
	if idx <= 0 {
		return "", "", fmt.Errorf("malformed configuration statement %q", stmt)
	}
	key = strings.TrimSpace(stmt[:idx])
	value = strings.TrimSpace(stmt[idx+1:])
	if key == "" {
		return "", "", fmt.Errorf("malformed configuration statement %q", stmt)
	}
	return key, value, nil
}

// firstArrayElement returns the first comma-separated element of value,
// trimmed of surrounding whitespace.
func firstArrayElement(value string) string {
	parts := strings.SplitN(value, ",", 2)
	return strings.TrimSpace(parts[0])
}
