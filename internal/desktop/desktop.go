// Package desktop scans directories for .desktop shortcut files and parses
// them into application entries. A scan never aborts on a malformed file;
// per-file failures are collected and returned alongside the entries that
// did parse.
package desktop

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entry is a parsed .desktop file, the raw material for an index record.
type Entry struct {
	Name       string // Display name
	Exec       string // Exec command, field codes stripped
	Icon       string // Icon name or path
	Terminal   bool   // Whether to run in a terminal
	NoDisplay  bool   // Entry is hidden from launchers
	SourcePath string // Path to the .desktop file
}

// ParseError records a single file that could not be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ParseError) Unwrap() error { return e.Err }

// Scan walks every directory in paths and parses all .desktop files found.
// Directories that do not exist or cannot be read are skipped silently;
// files that exist but fail to parse are reported in the returned error
// list. NoDisplay entries are excluded from the result.
func Scan(paths []string) ([]Entry, []ParseError) {
	var entries []Entry
	var errs []ParseError

	for _, root := range paths {
		filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() || !strings.HasSuffix(path, ".desktop") {
				return nil
			}

			entry, err := ParseFile(path)
			if err != nil {
				errs = append(errs, ParseError{Path: path, Err: err})
				return nil
			}
			if entry.NoDisplay {
				return nil
			}
			entries = append(entries, *entry)
			return nil
		})
	}

	return entries, errs
}

// ParseFile parses a single .desktop file. Only the [Desktop Entry] section
// is read.
func ParseFile(path string) (*Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	entry := &Entry{SourcePath: path}

	scanner := bufio.NewScanner(file)
	var inDesktopEntry bool

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inDesktopEntry = strings.Trim(line, "[]") == "Desktop Entry"
			continue
		}
		if !inDesktopEntry {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "Name":
			entry.Name = value
		case "Exec":
			entry.Exec = CleanExec(value)
		case "Icon":
			entry.Icon = value
		case "Terminal":
			entry.Terminal = strings.EqualFold(value, "true")
		case "NoDisplay":
			entry.NoDisplay = strings.EqualFold(value, "true")
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if entry.Exec == "" {
		return nil, fmt.Errorf("missing Exec key")
	}
	if entry.Name == "" {
		entry.Name = strings.TrimSuffix(filepath.Base(path), ".desktop")
	}

	return entry, nil
}

// CleanExec strips %-field codes from an Exec value and collapses the
// remaining whitespace. Launchers pass no files or URLs, so all codes
// expand to nothing.
func CleanExec(exec string) string {
	var b strings.Builder
	i := 0
	for i < len(exec) {
		if exec[i] == '%' && i+1 < len(exec) {
			next := exec[i+1]
			if (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') || next == '%' {
				if next == '%' {
					b.WriteByte('%')
				}
				i += 2
				continue
			}
		}
		b.WriteByte(exec[i])
		i++
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
