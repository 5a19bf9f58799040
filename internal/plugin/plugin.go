// Package plugin discovers and runs graph365-* extension binaries found
// in PATH, kubectl-style.
package plugin

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

const prefix = "graph365-"

// Find looks for a graph365-* plugin in PATH.
func Find(name string) (string, error) {
	path, err := exec.LookPath(prefix + name)
	if err != nil {
		return "", fmt.Errorf("plugin '%s%s' not found in PATH", prefix, name)
	}
	return path, nil
}

// Run executes a graph365-* plugin, wiring the process streams through.
func Run(name string, args []string) error {
	path, err := Find(name)
	if err != nil {
		return err
	}

	cmd := exec.Command(path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	return cmd.Run()
}

// List returns the names of all executable graph365-* plugins in PATH,
// sorted and deduplicated.
func List() ([]string, error) {
	pathEnv := os.Getenv("PATH")
	if pathEnv == "" {
		return nil, nil
	}

	seen := map[string]bool{}
	for _, dir := range strings.Split(pathEnv, string(os.PathListSeparator)) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasPrefix(name, prefix) {
				continue
			}
			info, err := os.Stat(filepath.Join(dir, name))
			if err != nil || info.Mode()&0111 == 0 {
				continue
			}
			seen[strings.TrimPrefix(name, prefix)] = true
		}
	}

	result := make([]string, 0, len(seen))
	for name := range seen {
		result = append(result, name)
	}
	sort.Strings(result)

	return result, nil
}
