// Package scan walks a project tree and builds the initial artifact
// dependency graph: one artifact per source file, wired together by
// import-derived requires edges. Cross-package edges are resolved to a
// package's primary file, since the graph and contract packages both
// model one artifact as exactly one file.
package scan

import (
	"context"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"sunwell/internal/config"
	"sunwell/internal/graph"
	"sunwell/internal/logging"
)

// Result is everything one discovery pass learned.
type Result struct {
	Graph       *graph.Graph
	FilesFound  int
	FilesParsed int
}

// fileImports is what one worker produces for one file.
type fileImports struct {
	id      string
	relPath string
	dir     string
	imports []string
}

// Discover walks projectRoot, skipping cfg.IgnorePatterns, and returns a
// graph of one artifact per .go file with requires edges derived from
// each file's imports. Files that fail to parse are still added to the
// graph (with no requires contributed by that file), consistent with the
// "tool errors never abort a whole pass" posture the rest of the system
// follows.
func Discover(ctx context.Context, projectRoot string, modulePath string, cfg config.ScanConfig) (*Result, error) {
	files, err := listGoFiles(projectRoot, cfg.IgnorePatterns)
	if err != nil {
		return nil, err
	}

	workers := cfg.DeepWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 8 {
			workers = 8
		}
		if workers < 2 {
			workers = 2
		}
	}

	parsed := parseConcurrently(ctx, projectRoot, files, workers, cfg.MaxFastASTBytes)

	primaryByDir := choosePrimaryFiles(parsed)

	g := graph.New()
	for _, f := range parsed {
		if err := g.Add(&graph.Artifact{ID: f.id, ProducesFile: f.relPath}); err != nil {
			logging.Get(logging.CategoryScan).Warn("discover: add %s: %v", f.id, err)
		}
	}

	for _, f := range parsed {
		requires := requiresFor(f, primaryByDir, modulePath)
		if len(requires) == 0 {
			continue
		}
		art, err := g.Get(f.id)
		if err != nil {
			continue
		}
		art.Requires = requires
		if err := g.Update(art); err != nil {
			logging.Get(logging.CategoryScan).Warn("discover: wire requires for %s: %v", f.id, err)
		}
	}

	return &Result{Graph: g, FilesFound: len(files), FilesParsed: len(parsed)}, nil
}

func listGoFiles(root string, ignore []string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && ignored(rel, ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func ignored(rel string, patterns []string) bool {
	first := strings.Split(filepath.ToSlash(rel), "/")[0]
	for _, p := range patterns {
		if first == p || rel == p {
			return true
		}
	}
	return false
}

func parseConcurrently(ctx context.Context, root string, files []string, workers int, maxBytes int64) []fileImports {
	type job struct {
		idx  int
		path string
	}
	jobs := make(chan job)
	results := make([]fileImports, len(files))
	var valid []bool = make([]bool, len(files))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if fi, ok := parseOne(root, j.path, maxBytes); ok {
					results[j.idx] = fi
					valid[j.idx] = true
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, p := range files {
			select {
			case <-ctx.Done():
				return
			case jobs <- job{idx: i, path: p}:
			}
		}
	}()
	wg.Wait()

	out := make([]fileImports, 0, len(files))
	for i, ok := range valid {
		if ok {
			out = append(out, results[i])
		}
	}
	return out
}

func parseOne(root, path string, maxBytes int64) (fileImports, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return fileImports{}, false
	}
	rel = filepath.ToSlash(rel)
	id := strings.TrimSuffix(rel, ".go")

	if info, err := os.Stat(path); err == nil && maxBytes > 0 && info.Size() > maxBytes {
		return fileImports{id: id, relPath: rel, dir: filepath.ToSlash(filepath.Dir(rel))}, true
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		logging.Get(logging.CategoryScan).Debug("discover: parse %s: %v", path, err)
		return fileImports{id: id, relPath: rel, dir: filepath.ToSlash(filepath.Dir(rel))}, true
	}

	var imports []string
	for _, imp := range f.Imports {
		imports = append(imports, strings.Trim(imp.Path.Value, `"`))
	}
	return fileImports{id: id, relPath: rel, dir: filepath.ToSlash(filepath.Dir(rel)), imports: imports}, true
}

// choosePrimaryFiles picks one representative artifact id per directory:
// the file named after the directory if present, else the first file in
// sorted order. Cross-package requires edges are wired to this file.
func choosePrimaryFiles(files []fileImports) map[string]string {
	byDir := make(map[string][]fileImports)
	for _, f := range files {
		byDir[f.dir] = append(byDir[f.dir], f)
	}

	primary := make(map[string]string, len(byDir))
	for dir, fs := range byDir {
		sort.Slice(fs, func(i, j int) bool { return fs[i].id < fs[j].id })
		pkgName := filepath.Base(dir)
		chosen := fs[0].id
		for _, f := range fs {
			if filepath.Base(f.id) == pkgName {
				chosen = f.id
				break
			}
		}
		primary[dir] = chosen
	}
	return primary
}

func requiresFor(f fileImports, primaryByDir map[string]string, modulePath string) []string {
	prefix := modulePath + "/"
	seen := make(map[string]bool)
	var out []string
	for _, imp := range f.imports {
		if !strings.HasPrefix(imp, prefix) {
			continue
		}
		dir := strings.TrimPrefix(imp, modulePath+"/")
		target, ok := primaryByDir[dir]
		if !ok || target == f.id || seen[target] {
			continue
		}
		seen[target] = true
		out = append(out, target)
	}
	sort.Strings(out)
	return out
}
