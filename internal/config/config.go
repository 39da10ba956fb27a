// Package config provides the immutable dotted-key configuration map the
// connector is driven by. A Configuration is never mutated in place:
// Filter, Subset and Edit all return new values, so a derived driver
// configuration can never leak changes back into the one the caller holds.
package config

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/datakite/mysqlcdc/internal/errs"
)

// Configuration is an immutable mapping from dotted string keys
// (e.g. "database.hostname") to string values.
type Configuration struct {
	values map[string]string
}

// New builds a Configuration from the given map. The map is copied, so
// later mutation of the argument does not affect the Configuration.
func New(values map[string]string) Configuration {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Configuration{values: copied}
}

// FromYAML reads a YAML document and flattens nested mappings into dotted
// keys: {database: {hostname: db1}} becomes "database.hostname" = "db1".
// Scalar values are rendered with their YAML string form.
func FromYAML(r io.Reader) (Configuration, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Configuration{}, errs.Wrap(errs.ErrKindInvalidInput, "reading configuration", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Configuration{}, errs.Wrap(errs.ErrKindInvalidInput, "parsing configuration YAML", err)
	}

	values := make(map[string]string)
	flatten("", doc, values)
	return Configuration{values: values}, nil
}

// FromYAMLFile loads a Configuration from the YAML file at path.
func FromYAMLFile(path string) (Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		return Configuration{}, errs.Wrap(errs.ErrKindInvalidInput, "opening configuration file", err)
	}
	defer f.Close()
	return FromYAML(f)
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for key, value := range node {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			flatten(full, v, out)
		case nil:
			out[full] = ""
		default:
			out[full] = fmt.Sprint(v)
		}
	}
}

// GetString returns the value for key, or "" when the key is absent.
func (c Configuration) GetString(key string) string {
	return c.values[key]
}

// Lookup returns the value for key and whether the key is present.
func (c Configuration) Lookup(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// GetInt returns the value for key parsed as an integer, or def when the
// key is absent or not numeric.
func (c Configuration) GetInt(key string, def int) int {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Keys returns all keys in sorted order.
func (c Configuration) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (c Configuration) Len() int {
	return len(c.values)
}

// Filter returns a new Configuration holding only the entries whose key
// satisfies keep.
func (c Configuration) Filter(keep func(key string) bool) Configuration {
	values := make(map[string]string)
	for k, v := range c.values {
		if keep(k) {
			values[k] = v
		}
	}
	return Configuration{values: values}
}

// Subset returns a new Configuration holding only the entries whose key
// starts with prefix. When strip is true the prefix is removed from the
// keys of the result.
func (c Configuration) Subset(prefix string, strip bool) Configuration {
	values := make(map[string]string)
	for k, v := range c.values {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		key := k
		if strip {
			key = strings.TrimPrefix(k, prefix)
		}
		values[key] = v
	}
	return Configuration{values: values}
}

// Edit returns a Builder seeded with the current entries. The receiver is
// not modified by any Builder operation.
func (c Configuration) Edit() *Builder {
	values := make(map[string]string, len(c.values))
	for k, v := range c.values {
		values[k] = v
	}
	return &Builder{values: values}
}

// Builder accumulates changes for a derived Configuration.
type Builder struct {
	values map[string]string
}

// With sets key to value, replacing any existing entry.
func (b *Builder) With(key, value string) *Builder {
	b.values[key] = value
	return b
}

// WithDefault sets key to value only when the key is currently absent.
func (b *Builder) WithDefault(key, value string) *Builder {
	if _, ok := b.values[key]; !ok {
		b.values[key] = value
	}
	return b
}

// Build finalises the Builder into an immutable Configuration.
func (b *Builder) Build() Configuration {
	values := make(map[string]string, len(b.values))
	for k, v := range b.values {
		values[k] = v
	}
	return Configuration{values: values}
}
