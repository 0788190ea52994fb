package config

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ReadStringList reads a newline-separated list file, skipping blank lines
// and comments. Both "#" (IANA TLD list) and "//" (public suffix list)
// comment markers are recognized.
func ReadStringList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "[ReadStringList] open")
	}
	defer f.Close()

	var list []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		list = append(list, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "[ReadStringList] scan")
	}
	return list, nil
}
