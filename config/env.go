package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Malformed values fall back to the default and are logged; Load never fails.

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func badValue(key, v string, def any, err error) {
	logrus.WithFields(logrus.Fields{"key": key, "value": v, "default": def}).WithError(err).Warn("invalid config value, using default")
}

func getbool(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		badValue(key, v, def, err)
		return def
	}
	return b
}

func getint(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		badValue(key, v, def, err)
		return def
	}
	return i
}

func getdur(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		badValue(key, v, def, err)
		return def
	}
	return d
}

// getlist reads a comma-separated list, dropping blanks.
func getlist(key, def string) []string {
	return splitList(getenv(key, def))
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}
