package config

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Setting is one leaf of Config, addressed by its dotted JSON key such as
// "llm.model".
type Setting struct {
	Key    string
	Secret bool

	index []int
	kind  reflect.Kind
}

var settings = collect(reflect.TypeFor[Config](), "", nil)

func collect(t reflect.Type, prefix string, index []int) []Setting {
	var out []Setting
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		idx := append(slices.Clone(index), i)
		if f.Type.Kind() == reflect.Struct {
			out = append(out, collect(f.Type, name, idx)...)
			continue
		}
		out = append(out, Setting{
			Key:    name,
			Secret: f.Tag.Get("secret") == "true",
			index:  idx,
			kind:   f.Type.Kind(),
		})
	}
	return out
}

// Lookup finds the setting for key.
func Lookup(key string) (Setting, error) {
	for _, s := range settings {
		if s.Key == key {
			return s, nil
		}
	}
	return Setting{}, fmt.Errorf("unknown config key: %s", key)
}

func mustLookup(key string) Setting {
	s, err := Lookup(key)
	if err != nil {
		panic(err)
	}
	return s
}

// IsSecretKey reports whether key names a secret setting.
func IsSecretKey(key string) bool {
	s, err := Lookup(key)
	return err == nil && s.Secret
}

// Type names the value type accepted by set.
func (s Setting) Type() string {
	switch s.kind {
	case reflect.Bool:
		return "bool"
	case reflect.Int:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	}
	return "string"
}

func (s Setting) field(cfg *Config) reflect.Value {
	return reflect.ValueOf(cfg).Elem().FieldByIndex(s.index)
}

// parse converts raw to the setting's type and stores it in cfg.
func (s Setting) parse(cfg *Config, raw string) error {
	v := s.field(cfg)
	trimmed := strings.TrimSpace(raw)
	switch s.kind {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", s.Key, raw)
		}
		v.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return fmt.Errorf("%s expects an integer, got %q", s.Key, raw)
		}
		v.SetInt(int64(n))
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(trimmed, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("%s expects a number, got %q", s.Key, raw)
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("%s has unsupported type %s", s.Key, s.kind)
	}
	return nil
}

func (s Setting) format(cfg *Config, mask bool) string {
	v := s.field(cfg)
	var out string
	switch s.kind {
	case reflect.Float32, reflect.Float64:
		out = strconv.FormatFloat(v.Float(), 'g', -1, v.Type().Bits())
	default:
		out = fmt.Sprint(v.Interface())
	}
	if mask && s.Secret {
		return Mask(out)
	}
	return out
}

// Mask hides a secret, keeping the last 4 characters of values long enough
// that they stay hidden.
func Mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "***"
	}
	return "***" + secret[len(secret)-4:]
}
