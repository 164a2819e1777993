package upstreamconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// EnvConfigDir and EnvConfigFile name the environment variables spec.md
// section 6 says are consulted during upstream-spec path resolution.
const (
	EnvConfigDir  = "MAGICTUNNEL_CONFIG_DIR"
	EnvConfigFile = "MAGICTUNNEL_CONFIG"
)

const defaultFileName = "magictunnel.yaml"

// Locate resolves the upstream-spec file path following the ordered
// search list in SPEC_FULL.md section 6.1: explicit env var, CWD,
// next to the executable, env-pointed config dir, user config dir, then
// the system config dir. mainConfigDir, if non-empty, is the directory
// of the embedding application's own main config file (spec.md section
// 4.B) and is checked last before giving up.
func Locate(mainConfigDir string) (string, error) {
	var candidates []string

	if p := os.Getenv(EnvConfigFile); p != "" {
		candidates = append(candidates, p)
	}

	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, defaultFileName))
	}

	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), defaultFileName))
	}

	if dir := os.Getenv(EnvConfigDir); dir != "" {
		candidates = append(candidates, filepath.Join(dir, defaultFileName))
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".magictunnel", defaultFileName))
	}

	candidates = append(candidates, filepath.Join("/etc/magictunnel", defaultFileName))

	if mainConfigDir != "" {
		candidates = append(candidates, filepath.Join(mainConfigDir, defaultFileName))
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	return "", fmt.Errorf("upstreamconfig: no upstream-spec file found in any of %d candidate locations", len(candidates))
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces every ${VAR} occurrence in s with the value of the
// current process's VAR, leaving unmatched variables as empty strings.
// Used for child-process env values per spec.md section 4.A.
func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
}

// Load reads and parses the upstream-spec document at path, applying
// defaults and expanding ${VAR} references in every stdio upstream's env
// map against the current process environment.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("upstreamconfig: read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("upstreamconfig: parse %s: %w", path, err)
	}

	for name, spec := range doc.MCPServers {
		expanded := make(map[string]string, len(spec.Env))
		for k, v := range spec.Env {
			expanded[k] = expandEnv(v)
		}
		spec.Env = expanded
		doc.MCPServers[name] = spec
	}

	doc.ApplyDefaults()
	return &doc, nil
}
