package storage

import (
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Options is the flat key/value configuration handed to a storage backend.
// It mirrors the `storage.config` map in the server config file.
type Options map[string]string

// GetString returns the value for key, or def if it is absent or empty.
func (o Options) GetString(key, def string) string {
	if v, ok := o[key]; ok && v != "" {
		return v
	}
	return def
}

// GetBool parses a boolean option ("true/false", "1/0", "yes/no").
func (o Options) GetBool(backend, key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, NewConfigErrorWithValue(backend, key, v, "must be a boolean (true/false, 1/0, yes/no)")
	}
}

// GetInt parses an integer option.
func (o Options) GetInt(backend, key string, def int) (int, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ConfigError{Backend: backend, Field: key, Value: v, Message: "must be an integer", Cause: err}
	}
	return i, nil
}

// GetInt64 parses a 64-bit integer option.
func (o Options) GetInt64(backend, key string, def int64) (int64, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &ConfigError{Backend: backend, Field: key, Value: v, Message: "must be an integer", Cause: err}
	}
	return i, nil
}

// GetDuration parses a Go duration ("5s", "1m30s") or plain integer seconds.
func (o Options) GetDuration(backend, key string, def time.Duration) (time.Duration, error) {
	v, ok := o[key]
	if !ok || v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, NewConfigErrorWithValue(backend, key, v, "must be a duration (e.g., '5s', '1m30s') or integer seconds")
}

// Merge returns a new Options with override applied on top of o.
func (o Options) Merge(override Options) Options {
	result := make(Options, len(o)+len(override))
	maps.Copy(result, o)
	maps.Copy(result, override)
	return result
}

// ExpandPath expands a leading ~/ to the user's home directory and cleans the path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return filepath.Clean(path)
}
