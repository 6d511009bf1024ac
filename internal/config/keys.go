package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned by Get and Set for keys that do not name a setting.
var ErrUnknownKey = errors.New("unknown configuration key")

// Get returns the value at a dotted key such as "batch.max_concurrent".
// A key naming a section returns the whole section.
func (c *Config) Get(key string) (interface{}, error) {
	v, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	return v.Interface(), nil
}

// GetString returns the value at key rendered as YAML without a trailing newline.
func (c *Config) GetString(key string) (string, error) {
	val, err := c.Get(key)
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", nil
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	out, err := yaml.Marshal(val)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", key, err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Set parses raw as YAML into the setting at key. Sections cannot be set as a whole.
func (c *Config) Set(key, raw string) error {
	v, err := c.lookup(key)
	if err != nil {
		return err
	}
	if v.Kind() == reflect.Struct {
		return fmt.Errorf("%s is a section; set one of its keys instead", key)
	}

	fresh := reflect.New(v.Type())
	if v.Kind() == reflect.String {
		// Keep strings verbatim so values like "on" or "58.0" are not reinterpreted.
		fresh.Elem().SetString(raw)
	} else if err = yaml.Unmarshal([]byte(raw), fresh.Interface()); err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", raw, key, err)
	}
	v.Set(fresh.Elem())
	return nil
}

// Keys lists every settable dotted key.
func Keys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := range t.NumField() {
		f := t.Field(i)
		name := yamlName(f)
		if name == "" {
			continue
		}
		full := name
		if prefix != "" {
			full = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, full, keys)
			continue
		}
		*keys = append(*keys, full)
	}
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, fmt.Errorf("%w: empty key", ErrUnknownKey)
	}

	v := reflect.ValueOf(c).Elem()
	for _, part := range strings.Split(key, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		v = field
	}
	return v, nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := range t.NumField() {
		if yamlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func yamlName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	tag := f.Tag.Get("yaml")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return strings.ToLower(f.Name)
	}
	return name
}
