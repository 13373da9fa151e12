package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	versionRe = regexp.MustCompile(`^\d{14}$`)
)

const (
	annotationUp    = "-- +goose Up"
	annotationDown  = "-- +goose Down"
	statementBegin  = "-- +goose StatementBegin"
	statementFinish = "-- +goose StatementEnd"
)

// ValidateDir checks the migration files in a directory on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks filenames, version uniqueness and goose annotations.
// Every file needs an Up section followed by a Down section, and statement
// blocks must be closed before the next section starts.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		name := e.Name()

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := checkAnnotations(string(b)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func checkAnnotations(txt string) error {
	var (
		sawUp, sawDown bool
		open           bool
	)
	for _, raw := range strings.Split(txt, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, annotationUp):
			if sawUp || sawDown {
				return fmt.Errorf("unexpected %q", annotationUp)
			}
			sawUp = true
		case strings.HasPrefix(line, annotationDown):
			if !sawUp {
				return fmt.Errorf("%q before %q", annotationDown, annotationUp)
			}
			if open {
				return fmt.Errorf("unterminated statement block before %q", annotationDown)
			}
			sawDown = true
		case strings.HasPrefix(line, statementBegin):
			if open {
				return fmt.Errorf("nested %q", statementBegin)
			}
			open = true
		case strings.HasPrefix(line, statementFinish):
			if !open {
				return fmt.Errorf("%q without %q", statementFinish, statementBegin)
			}
			open = false
		}
	}
	switch {
	case !sawUp:
		return fmt.Errorf("missing %q", annotationUp)
	case !sawDown:
		return fmt.Errorf("missing %q", annotationDown)
	case open:
		return fmt.Errorf("unterminated statement block")
	}
	return nil
}
