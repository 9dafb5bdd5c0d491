package config

import (
	"fmt"
	"strings"
)

// ParseBool parses the boolean spellings accepted in config files and
// environment variables. Empty input returns defaultVal; anything not
// recognized is an error.
func ParseBool(val string, defaultVal bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(val))
	if v == "" {
		return defaultVal, nil
	}

	switch v {
	case "1", "true", "yes", "on", "enabled", "enable":
		return true, nil
	case "0", "false", "no", "off", "disabled", "disable":
		return false, nil
	}
	return defaultVal, fmt.Errorf("invalid boolean value %q", val)
}

// ParseBoolDefault parses boolean with a default value, ignoring errors
func ParseBoolDefault(val string, defaultVal bool) bool {
	result, _ := ParseBool(val, defaultVal)
	return result
}
