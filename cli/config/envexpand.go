package config

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
)

// envRef matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:[-?])([^}]*))?\}`)

// expandValue resolves environment references in one decoded value.
// An unset or empty variable takes its default, fails with its message
// under :?, and otherwise expands to "".
func expandValue(field, value string) (string, error) {
	var missing error
	out := envRef.ReplaceAllStringFunc(value, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, op, arg := m[1], m[2], m[3]
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		switch op {
		case ":-":
			return arg
		case ":?":
			if missing == nil {
				if arg == "" {
					arg = "required"
				}
				missing = fmt.Errorf("%s: ${%s}: %s", field, name, arg)
			}
		}
		return ""
	})
	return out, missing
}

// expandEnv resolves references in the source and adapter sections, the
// values that carry endpoints and credentials. Poll, records and serve
// values are taken literally.
func (c *Config) expandEnv() error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"source.base_url", &c.Source.BaseURL},
		{"source.path", &c.Source.Path},
		{"source.region", &c.Source.Region},
		{"source.endpoint", &c.Source.Endpoint},
		{"adapter.url", &c.Adapter.URL},
		{"adapter.channel", &c.Adapter.Channel},
	}
	for _, f := range fields {
		v, err := expandValue(f.name, *f.ptr)
		if err != nil {
			return err
		}
		*f.ptr = v
	}
	if err := expandHeaders("source.headers", c.Source.Headers); err != nil {
		return err
	}
	return expandHeaders("adapter.headers", c.Adapter.Headers)
}

func expandHeaders(section string, headers map[string]string) error {
	for _, k := range slices.Sorted(maps.Keys(headers)) {
		v, err := expandValue(section+"."+k, headers[k])
		if err != nil {
			return err
		}
		headers[k] = v
	}
	return nil
}
