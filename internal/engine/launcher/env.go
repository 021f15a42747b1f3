package launcher

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/refresh/internal/core/domain"
)

// BaseURL returns the address of the refresh server as seen by the app.
func BaseURL(secure bool, host string, port int) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// BuildEnv merges the inherited environment, the configured overrides and the
// refresh variables, in that priority order. APP_ENV defaults to development.
// The result is sorted by key.
func BuildEnv(base []string, extra map[string]string, port int, baseURL, version string) []string {
	envMap := make(map[string]string, len(base)+len(extra)+4)
	for _, entry := range base {
		if k, v, ok := strings.Cut(entry, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range extra {
		envMap[k] = v
	}

	if _, ok := envMap[domain.EnvAppEnv]; !ok {
		envMap[domain.EnvAppEnv] = domain.DefaultAppEnv
	}
	envMap[domain.EnvPort] = strconv.Itoa(port)
	envMap[domain.EnvURL] = baseURL
	envMap[domain.EnvVersion] = version

	result := make([]string, 0, len(envMap))
	for _, k := range slices.Sorted(maps.Keys(envMap)) {
		result = append(result, k+"="+envMap[k])
	}
	return result
}
