package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoExtractor_FunctionsAndTypes(t *testing.T) {
	src := []byte(`package sample

type Widget struct {
	Name string
}

func (w *Widget) Render() string { return w.Name }

func (w *Widget) hidden() {}

func NewWidget(name string) *Widget { return &Widget{Name: name} }

func internalHelper() {}
`)
	e := GoExtractor{}
	c, err := e.Extract("sample.go", src)
	require.NoError(t, err)
	assert.Contains(t, c.Exports, "Widget")
	assert.Contains(t, c.Exports, "NewWidget")
	assert.NotContains(t, c.Exports, "internalHelper")
	require.Len(t, c.Classes, 1)
	assert.Contains(t, c.Classes[0], "Render")
	assert.NotContains(t, c.Classes[0], "hidden")
	assert.Len(t, c.InterfaceHash, 16)
}

func TestGoExtractor_UnparseableReturnsExtractionFailed(t *testing.T) {
	e := GoExtractor{}
	_, err := e.Extract("broken.go", []byte("this is not valid go ((("))
	require.Error(t, err)
	var extractionErr *ExtractionFailedError
	assert.ErrorAs(t, err, &extractionErr)
}

func TestContractHash_DeterministicAndOrderIndependent(t *testing.T) {
	a := New("x", "x.go", []string{"Foo()", "Bar()"}, nil, []string{"Foo", "Bar"}, nil)
	b := New("x", "x.go", []string{"Bar()", "Foo()"}, nil, []string{"Bar", "Foo"}, nil)
	assert.Equal(t, a.InterfaceHash, b.InterfaceHash)
}

func TestContractHash_ChangesWithContent(t *testing.T) {
	a := New("x", "x.go", []string{"Foo()"}, nil, []string{"Foo"}, nil)
	b := New("x", "x.go", []string{"Foo(int)"}, nil, []string{"Foo"}, nil)
	assert.NotEqual(t, a.InterfaceHash, b.InterfaceHash)
}

func TestIsCompatibleWith_SupersetStaysCompatible(t *testing.T) {
	prior := New("x", "x.go", []string{"Foo()"}, nil, []string{"Foo"}, nil)
	next := New("x", "x.go", []string{"Foo()", "Bar()"}, nil, []string{"Foo", "Bar"}, nil)
	assert.True(t, next.IsCompatibleWith(prior))
}

func TestIsCompatibleWith_DroppedExportIsIncompatible(t *testing.T) {
	prior := New("x", "x.go", []string{"Foo()", "Bar()"}, nil, []string{"Foo", "Bar"}, nil)
	next := New("x", "x.go", []string{"Foo()"}, nil, []string{"Foo"}, nil)
	assert.False(t, next.IsCompatibleWith(prior))
}

func TestIsCompatibleWith_RenamedFunctionIsIncompatible(t *testing.T) {
	prior := New("x", "x.go", []string{"Foo()"}, nil, []string{"Foo"}, nil)
	next := New("x", "x.go", []string{"Fooo()"}, nil, []string{"Fooo"}, nil)
	assert.False(t, next.IsCompatibleWith(prior))
}

func TestIsCompatibleWith_ClassMethodSubsetRules(t *testing.T) {
	prior := New("x", "x.go", nil, []string{"Widget: Render, Update"}, []string{"Widget"}, nil)
	compatible := New("x", "x.go", nil, []string{"Widget: Render, Update, Clone"}, []string{"Widget"}, nil)
	incompatible := New("x", "x.go", nil, []string{"Widget: Render"}, []string{"Widget"}, nil)
	assert.True(t, compatible.IsCompatibleWith(prior))
	assert.False(t, incompatible.IsCompatibleWith(prior))
}

func TestIsCompatibleWith_NilPriorIsAlwaysCompatible(t *testing.T) {
	next := New("x", "x.go", []string{"Foo()"}, nil, []string{"Foo"}, nil)
	assert.True(t, next.IsCompatibleWith(nil))
}

func TestPythonExtractor_PublicFunctionsAndClasses(t *testing.T) {
	src := []byte(`
class Widget:
    def render(self):
        return self.name

    def _private(self):
        pass

def make_widget(name):
    return Widget(name)

def _helper():
    pass
`)
	e := NewPythonExtractor()
	c, err := e.Extract("sample.py", src)
	require.NoError(t, err)
	assert.Contains(t, c.Exports, "Widget")
	assert.Contains(t, c.Exports, "make_widget")
	assert.NotContains(t, c.Exports, "_helper")
	require.Len(t, c.Classes, 1)
	assert.Contains(t, c.Classes[0], "render")
	assert.NotContains(t, c.Classes[0], "_private")
}

func TestTypeScriptExtractor_OnlyExportedDeclarations(t *testing.T) {
	src := []byte(`
function internalOnly() { return 1; }

export function publicFn(x: number): number { return x; }

export class Widget {
	render(): string { return "x"; }
}
`)
	e := NewTypeScriptExtractor()
	c, err := e.Extract("sample.ts", src)
	require.NoError(t, err)
	assert.Contains(t, c.Exports, "publicFn")
	assert.Contains(t, c.Exports, "Widget")
	assert.NotContains(t, c.Exports, "internalOnly")
}

func TestRegistry_DispatchesByExtension(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "go", r.ForPath("a/b.go").Language())
	assert.Equal(t, "python", r.ForPath("a/b.py").Language())
	assert.Equal(t, "typescript", r.ForPath("a/b.ts").Language())
	assert.Nil(t, r.ForPath("a/b.rs"))
}

func TestRegistry_UnsupportedExtensionReturnsNilNotError(t *testing.T) {
	r := NewRegistry()
	c, err := r.Extract("a/b.rs", []byte("fn main() {}"))
	require.NoError(t, err)
	assert.Nil(t, c)
}
