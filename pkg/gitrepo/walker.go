package gitrepo

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// skipDirs are dependency caches and VCS metadata never pushed.
var skipDirs = map[string]bool{
	"node_modules": true,
	"bin":          true,
	"obj":          true,
	".git":         true,
}

// fileWriter writes one file into the bound repository, creating it or
// updating it when it already exists. repoPath is slash-separated.
type fileWriter func(ctx context.Context, repoPath string, content []byte) error

// pushTree walks localDir and writes every regular file through write,
// prefixing repository paths with targetPrefix and applying substitutions
// to each file's content.
func pushTree(ctx context.Context, localDir, targetPrefix string, substitutions map[string]string, write fileWriter) error {
	return filepath.WalkDir(localDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if skipDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return fmt.Errorf("resolving relative path for %s: %w", path, err)
		}
		repoPath := filepath.ToSlash(rel)
		if targetPrefix != "" {
			repoPath = strings.TrimSuffix(targetPrefix, "/") + "/" + repoPath
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if len(substitutions) > 0 {
			content = []byte(ApplySubstitutions(string(content), substitutions))
		}
		return write(ctx, repoPath, content)
	})
}
