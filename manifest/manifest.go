// Package manifest reads the ordered list of input files the work loop
// drives to completion, producing an already-deduplicated, already-trimmed
// slice ready to iterate.
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Load reads path line by line, skipping blank lines and deduplicating on
// first occurrence while preserving encounter order.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var files []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		files = append(files, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return files, nil
}
