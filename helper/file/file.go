// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package file

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ListConfigFiles returns the sorted paths of the regular files in dir whose
// name ends with one of the passed suffixes. Editor backup and lock files are
// skipped.
func ListConfigFiles(dir string, suffixes ...string) ([]string, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("configuration path must be a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !hasSuffix(name, suffixes) || IsTemporaryFile(name) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}

	slices.Sort(files)
	return files, nil
}

func hasSuffix(name string, suffixes []string) bool {
	return slices.ContainsFunc(suffixes, func(s string) bool {
		return strings.HasSuffix(name, s)
	})
}

// IsTemporaryFile reports whether name looks like a vim or emacs temporary
// file.
func IsTemporaryFile(name string) bool {
	return strings.HasSuffix(name, "~") || // vim
		strings.HasPrefix(name, ".#") || // emacs
		(strings.HasPrefix(name, "#") && strings.HasSuffix(name, "#")) // emacs
}
