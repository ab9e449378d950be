package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every `env` tag.
const EnvPrefix = "SVCMGR_"

// LoadConfig fills opts with precedence CLI flags > environment > config file.
// opts must be a pointer to a flat struct; fields opt in with `toml:"a.b"` and
// `env:"NAME"` tags. A field named Config holds the file path. A missing file
// is not an error, an unreadable or malformed one is.
// If cmd is provided, flags explicitly set on the command line are left alone.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	fromCLI := changedFlags(cmd)

	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
		doc, err := readTOML(f.String())
		if err != nil {
			return err
		}
		err = eachField(v, fromCLI, "toml", func(field reflect.Value, key string) error {
			value := getNestedValue(doc, key)
			if value == nil {
				return nil
			}
			if err := setFieldValue(field, value); err != nil {
				return fmt.Errorf("config key %s: %w", key, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return eachField(v, fromCLI, "env", func(field reflect.Value, key string) error {
		name := EnvPrefix + key
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			return nil
		}
		if err := setFieldValueFromString(field, value); err != nil {
			return fmt.Errorf("environment %s: %w", name, err)
		}
		return nil
	})
}

// changedFlags returns the flags set explicitly on the command line.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = true
	})
	return changed
}

// eachField calls fn for every field carrying tag whose flag was not set on
// the command line. It stops at the first error.
func eachField(v reflect.Value, skip map[string]bool, tag string, fn func(field reflect.Value, key string) error) error {
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		key := sf.Tag.Get(tag)
		if key == "" || skip[fieldNameToFlag(sf.Name)] {
			continue
		}
		if err := fn(v.Field(i), key); err != nil {
			return err
		}
	}
	return nil
}

// readTOML returns nil without error when the file does not exist.
func readTOML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var config map[string]any
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return config, nil
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "RestartDelayMs" -> "restart-delay-ms", "Config" -> "config".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setFieldValue stores a decoded TOML value. A string field also accepts an
// array of strings, joined with newlines, so lists like environment entries
// can be written either way.
func setFieldValue(field reflect.Value, value any) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		switch val := value.(type) {
		case string:
			field.SetString(val)
		case []any:
			parts, err := stringList(val)
			if err != nil {
				return err
			}
			field.SetString(strings.Join(parts, "\n"))
		default:
			return fmt.Errorf("expected string, got %T", value)
		}
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		switch val := value.(type) {
		case int64:
			field.SetInt(val)
		case int:
			field.SetInt(int64(val))
		default:
			return fmt.Errorf("expected integer, got %T", value)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
		parts, err := stringList(arr)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(parts))
	}
	return nil
}

func stringList(arr []any) ([]string, error) {
	out := make([]string, len(arr))
	for i, v := range arr {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected array of strings, item %d is %T", i, v)
		}
		out[i] = s
	}
	return out, nil
}

// setFieldValueFromString sets a field value from an environment variable.
func setFieldValueFromString(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			slice := make([]string, len(parts))
			for i, part := range parts {
				slice[i] = strings.TrimSpace(part)
			}
			field.Set(reflect.ValueOf(slice))
		}
	}
	return nil
}
