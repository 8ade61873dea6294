package integration

import (
	"bufio"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"regexp"
	"strings"

	"sunwell/internal/graph"
)

var stubPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"TODO", regexp.MustCompile(`(?i)\bTODO\b`)},
	{"FIXME", regexp.MustCompile(`(?i)\bFIXME\b`)},
	{"not-implemented-panic", regexp.MustCompile(`panic\(\s*"not implemented"\s*\)`)},
	{"placeholder-comment", regexp.MustCompile(`(?i)placeholder`)},
}

// DetectStubs scans path for placeholder patterns: TODO/FIXME markers,
// explicit not-implemented panics, and, for Go files, function bodies
// with no statements at all.
func (v *Verifier) DetectStubs(path string) ([]StubLocation, error) {
	full := v.resolve(path)
	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var stubs []StubLocation
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		for _, p := range stubPatterns {
			if p.re.MatchString(line) {
				stubs = append(stubs, StubLocation{File: path, Line: lineNum, Pattern: p.name})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if strings.HasSuffix(full, ".go") {
		src, err := os.ReadFile(full)
		if err == nil {
			stubs = append(stubs, detectEmptyGoFuncs(path, src)...)
		}
	}
	return stubs, nil
}

func detectEmptyGoFuncs(displayPath string, src []byte) []StubLocation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, displayPath, src, 0)
	if err != nil {
		return nil
	}
	var stubs []StubLocation
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		if len(fn.Body.List) == 0 {
			stubs = append(stubs, StubLocation{
				File:    displayPath,
				Line:    fset.Position(fn.Pos()).Line,
				Pattern: "empty-function-body",
			})
		}
	}
	return stubs
}

// VerifyTaskComplete aggregates the artifact's declared integration checks
// and a stub scan of its produced files into one verdict.
func (v *Verifier) VerifyTaskComplete(artifact *graph.Artifact, producedFiles []string) (*TaskVerificationResult, error) {
	result := &TaskVerificationResult{ArtifactID: artifact.ID}

	for _, check := range artifact.Integrations {
		r, err := v.VerifyIntegration(check)
		if err != nil {
			return nil, err
		}
		result.Integrations = append(result.Integrations, r)
	}

	for _, path := range producedFiles {
		stubs, err := v.DetectStubs(path)
		if err != nil {
			continue // unreadable produced file: nothing to flag as a stub
		}
		result.Stubs = append(result.Stubs, stubs...)
	}

	result.Complete = len(result.Stubs) == 0
	for _, r := range result.Integrations {
		if !r.Satisfied {
			result.Complete = false
			break
		}
	}
	return result, nil
}
