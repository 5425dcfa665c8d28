package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
)

const (
	secretPrefixEnv  = "env://"
	secretPrefixFile = "file://"
)

// resolveSecrets replaces secret references in string fields:
//   - env://ENV_VAR_NAME reads from an environment variable
//   - file:///path/to/secret reads from a file (whitespace trimmed)
func resolveSecrets(cfg any) error {
	return resolveValue(reflect.ValueOf(cfg))
}

func resolveValue(v reflect.Value) error {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if f := v.Field(i); f.CanSet() {
				if err := resolveValue(f); err != nil {
					return fmt.Errorf("%s: %w", v.Type().Field(i).Name, err)
				}
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if err := resolveValue(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.String:
		if v.CanSet() {
			resolved, err := resolveSecretValue(v.String())
			if err != nil {
				return err
			}
			v.SetString(resolved)
		}
	}
	return nil
}

func resolveSecretValue(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, secretPrefixEnv):
		name := strings.TrimPrefix(value, secretPrefixEnv)
		env, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("environment variable %q not set", name)
		}
		return env, nil

	case strings.HasPrefix(value, secretPrefixFile):
		path := strings.TrimPrefix(value, secretPrefixFile)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read secret file %q: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil

	default:
		return value, nil
	}
}
