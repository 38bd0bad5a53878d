package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvVarSpec represents a parsed environment variable reference
type EnvVarSpec struct {
	// VarName is the environment variable name (e.g., "PLUGRUN_DSN")
	VarName string

	// HasDefault indicates if a default value was provided
	HasDefault bool

	// DefaultValue is the default value if HasDefault is true
	DefaultValue string

	// IsLiteral indicates if this is a literal value (not an env var)
	IsLiteral bool

	// LiteralValue is the literal value if IsLiteral is true
	LiteralValue string
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

// ParseEnvVar parses a config value that may reference an environment variable
//
// Supported formats:
//   - ${VAR}         - Required environment variable
//   - ${VAR:default} - Optional environment variable with default
//   - literal        - Plain literal value (no env var)
//
// Examples:
//
//	ParseEnvVar("${PLUGRUN_DSN}") -> required env var "PLUGRUN_DSN"
//	ParseEnvVar("${PLUGRUN_ADDR::8080}") -> env var with default ":8080"
//	ParseEnvVar("plugrun.db") -> literal value
func ParseEnvVar(value string) (*EnvVarSpec, error) {
	if value == "" {
		return &EnvVarSpec{IsLiteral: true}, nil
	}

	matches := envVarPattern.FindStringSubmatch(value)
	if matches == nil {
		return &EnvVarSpec{
			IsLiteral:    true,
			LiteralValue: value,
		}, nil
	}

	varName := matches[1]
	defaultPart := matches[2] // ":default" or empty

	if !isValidEnvVarName(varName) {
		return nil, fmt.Errorf("invalid environment variable name: %s", varName)
	}

	spec := &EnvVarSpec{
		VarName:    varName,
		HasDefault: defaultPart != "",
	}
	if spec.HasDefault {
		spec.DefaultValue = strings.TrimPrefix(defaultPart, ":")
	}

	return spec, nil
}

// isValidEnvVarName checks if a string is a valid environment variable name
// Valid names: Start with A-Z or underscore, contain only A-Z, 0-9, underscore
func isValidEnvVarName(name string) bool {
	if name == "" {
		return false
	}

	first := name[0]
	if !((first >= 'A' && first <= 'Z') || first == '_') {
		return false
	}

	for i := 1; i < len(name); i++ {
		c := name[i]
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}

	return true
}

// Resolve returns the value the spec stands for, looking variables up with
// lookup. A required variable that is unset is an error.
func (s *EnvVarSpec) Resolve(lookup func(string) (string, bool)) (string, error) {
	if s.IsLiteral {
		return s.LiteralValue, nil
	}
	if v, ok := lookup(s.VarName); ok {
		return v, nil
	}
	if s.HasDefault {
		return s.DefaultValue, nil
	}
	return "", fmt.Errorf("required environment variable %s is not set", s.VarName)
}

// Expand walks a decoded YAML document and replaces every string of the
// form ${VAR} or ${VAR:default} with its resolved value. Maps and slices are
// copied; other scalars are returned as is.
func Expand(v any) (any, error) {
	return expand(v, os.LookupEnv, "")
}

func expand(v any, lookup func(string) (string, bool), path string) (any, error) {
	switch val := v.(type) {
	case string:
		spec, err := ParseEnvVar(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", displayPath(path), err)
		}
		resolved, err := spec.Resolve(lookup)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", displayPath(path), err)
		}
		return resolved, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := expand(item, lookup, joinPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := expand(item, lookup, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func displayPath(path string) string {
	if path == "" {
		return "value"
	}
	return path
}

// MustParseEnvVar is like ParseEnvVar but panics on error
// Useful for testing and static initialization
func MustParseEnvVar(value string) *EnvVarSpec {
	spec, err := ParseEnvVar(value)
	if err != nil {
		panic(fmt.Sprintf("MustParseEnvVar failed: %v", err))
	}
	return spec
}
