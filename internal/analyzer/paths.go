package analyzer

import (
	"path/filepath"
	"strings"

	"sunwell/internal/graph"
)

// normalizeRel cleans and slash-normalizes a relative path reported by a
// tool, so it can be looked up in a byRelPath index built the same way.
func normalizeRel(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

// byRelPath indexes artifacts by their produces_file path relative to
// projectRoot, normalizing slashes so tool output (which may report
// relative or absolute paths) maps back to artifact ids consistently
// regardless of the caller's cwd.
func byRelPath(projectRoot string, artifacts []*graph.Artifact) map[string]string {
	out := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		if a.ProducesFile == "" {
			continue
		}
		rel := a.ProducesFile
		if filepath.IsAbs(rel) {
			if r, err := filepath.Rel(projectRoot, rel); err == nil {
				rel = r
			}
		}
		rel = filepath.ToSlash(filepath.Clean(rel))
		out[rel] = a.ID
	}
	return out
}

// byDir indexes artifacts by the slash-normalized directory of their
// produces_file, for tools (like `go test`) that report per-package
// results rather than per-file ones.
func byDir(projectRoot string, artifacts []*graph.Artifact) map[string][]string {
	out := make(map[string][]string)
	for rel, id := range byRelPath(projectRoot, artifacts) {
		dir := filepath.ToSlash(filepath.Dir(rel))
		out[dir] = append(out[dir], id)
	}
	return out
}

// matchPackageSuffix finds artifacts whose directory the reported Go
// import path ends with (e.g. "sunwell/internal/graph" matching dir
// "internal/graph").
func matchPackageSuffix(dirIndex map[string][]string, pkg string) []string {
	pkg = strings.TrimSuffix(pkg, "/")
	var best []string
	bestLen := -1
	for dir, ids := range dirIndex {
		if dir == "." {
			continue
		}
		if strings.HasSuffix(pkg, dir) && len(dir) > bestLen {
			best = ids
			bestLen = len(dir)
		}
	}
	return best
}
