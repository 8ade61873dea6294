package contract

import "path/filepath"

// Registry dispatches extraction to the right Extractor by file extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry builds the default registry: Go via GoExtractor, Python and
// TypeScript/JavaScript via tree-sitter.
func NewRegistry() *Registry {
	py := NewPythonExtractor()
	ts := NewTypeScriptExtractor()
	return &Registry{byExt: map[string]Extractor{
		".go":  GoExtractor{},
		".py":  py,
		".ts":  ts,
		".tsx": ts,
		".js":  ts,
		".jsx": ts,
	}}
}

// ForPath returns the Extractor registered for path's extension, or nil
// if the language is unsupported.
func (r *Registry) ForPath(path string) Extractor {
	return r.byExt[filepath.Ext(path)]
}

// Extract looks up the Extractor for path's extension and runs it.
// Unsupported extensions return (nil, nil): the caller treats this the
// same as an extraction failure — contract unavailable, non-blocking.
func (r *Registry) Extract(path string, src []byte) (*Contract, error) {
	ext := r.ForPath(path)
	if ext == nil {
		return nil, nil
	}
	return ext.Extract(path, src)
}
