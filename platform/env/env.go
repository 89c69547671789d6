// Package env reads typed settings from environment variables.
package env

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func String(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func Duration(key string, def time.Duration) (time.Duration, error) {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return d, nil
	}
	return def, nil
}

func Bool(key string, def bool) (bool, error) {
	if v, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}

func Int(key string, def int) (int, error) {
	if v, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}

// Uint64 is Int for budgets that cannot be negative.
func Uint64(key string, def uint64) (uint64, error) {
	if v, ok := os.LookupEnv(key); ok {
		i, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}

func Float64(key string, def float64) (float64, error) {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return f, nil
	}
	return def, nil
}
