// Package config reads the cluster membership file, reloads it at
// startup and whenever a reload signal arrives, and republishes the
// derived cluster view after each successful load.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultTombstoneLifetime is used when a config file omits
// tombstone_lifetime.
const DefaultTombstoneLifetime = 0

// Config is the parsed contents of a membership file: the current
// server list, an optional in-flight target server list for a scale
// operation, and the tombstone lifetime to apply on delete.
type Config struct {
	Servers           []string
	NewServers        []string
	TombstoneLifetime int
}

// ParseError reports a malformed configuration line.
type ParseError struct {
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config: malformed line: %q", e.Line)
}

// Reader loads a Config from a key=value file. The accepted keys are
// servers (required, comma-separated), new_servers (comma-separated),
// and tombstone_lifetime (an integer); any other key is rejected. Blank
// lines and lines whose first non-whitespace character is '#' are
// comments and are skipped.
type Reader struct {
	path string
}

// NewReader creates a Reader for the file at path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Read parses the file, returning an error if it cannot be opened, any
// line is malformed, tombstone_lifetime is not a valid integer, or the
// required servers key is absent.
func (r *Reader) Read() (Config, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	cfg := Config{TombstoneLifetime: DefaultTombstoneLifetime}
	sawServers := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, err := splitKeyValue(line)
		if err != nil {
			return Config{}, err
		}

		switch key {
		case "servers":
			cfg.Servers = splitCSV(value)
			sawServers = true
		case "new_servers":
			cfg.NewServers = splitCSV(value)
		case "tombstone_lifetime":
			n, err := strconv.Atoi(value)
			if err != nil || strconv.Itoa(n) != value {
				return Config{}, &ParseError{Line: line}
			}
			cfg.TombstoneLifetime = n
		default:
			return Config{}, &ParseError{Line: line}
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, err
	}
	if !sawServers {
		return Config{}, &ParseError{Line: "(missing required 'servers' key)"}
	}

	return cfg, nil
}

func splitKeyValue(line string) (key, value string, err error) {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return "", "", &ParseError{Line: line}
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), nil
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
