package temme

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/temmekit/internal/ports"
)

// =============================================================================
// Selector parser: grammar, located syntax errors, structural checks
// =============================================================================

func syntaxErr(t *testing.T, err error) *ports.SyntaxError {
	t.Helper()
	require.Error(t, err)
	var se *ports.SyntaxError
	require.True(t, errors.As(err, &se), "want *SyntaxError, got %T", err)
	return se
}

func TestParse_Accepts(t *testing.T) {
	for _, src := range []string{
		"",
		"   \n// only a comment\n/* block */",
		".a{$a}",
		"li@items { a[href=$url|trim] { $title|trim|squash } }",
		"$kind = 'page'; h1{$title}",
		"ul > li + li ~ li:not(.x)@{ $t }",
		`a[rel="nofollow"][data-x=y]{ $n = -1.5; $b = true; $z = null }`,
		"div;;span{$s};",
	} {
		_, err := Parse(src)
		assert.NoError(t, err, "source: %q", src)
	}
}

func TestParse_Structure(t *testing.T) {
	prog, err := Parse("ul li@items{ a[href=$url]{ $title|trim } }")
	require.NoError(t, err)
	require.Len(t, prog.Stmts, 1)

	rule := prog.Stmts[0].(*SelectorRule)
	assert.True(t, rule.Array)
	assert.Equal(t, "items", rule.ArrayName)
	assert.Equal(t, "ul li", rule.CSS())

	inner := rule.Children[0].(*SelectorRule)
	assert.Equal(t, "a[href]", inner.CSS())
	want := []AttrCapture{{Attr: "href", Name: "url"}}
	if diff := cmp.Diff(want, inner.captures()); diff != "" {
		t.Errorf("captures mismatch (-want +got):\n%s", diff)
	}
	cc := inner.Children[0].(*ContentCapture)
	assert.Equal(t, "title", cc.Name)
	require.Len(t, cc.Filters, 1)
	assert.Equal(t, "trim", cc.Filters[0].Name)
}

func TestParse_Combinators(t *testing.T) {
	prog, err := Parse("div>p + span   em{$x}")
	require.NoError(t, err)
	assert.Equal(t, "div > p + span em", prog.Stmts[0].(*SelectorRule).CSS())
}

func TestParse_Literals(t *testing.T) {
	prog, err := Parse(`$s = "a\"b"; $n = 42; $f = false`)
	require.NoError(t, err)
	var got []any
	for _, st := range prog.Stmts {
		got = append(got, st.(*Assignment).Value)
	}
	if diff := cmp.Diff([]any{`a"b`, 42.0, false}, got); diff != "" {
		t.Errorf("literals mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_UnclosedBody(t *testing.T) {
	se := syntaxErr(t, errorOf(Parse("div{")))
	require.NotNil(t, se.Location)
	assert.Equal(t, `Expected "}" but end of input found.`, se.Message)
	assert.Equal(t, 1, se.Location.Start.Line)
	assert.Equal(t, 5, se.Location.Start.Column)
	assert.Equal(t, se.Location.Start, se.Location.End)
}

func TestParse_MissingCaptureName(t *testing.T) {
	se := syntaxErr(t, errorOf(Parse("div{\n  $\n}")))
	require.NotNil(t, se.Location)
	assert.Equal(t, `Expected capture name but "\n" found.`, se.Message)
	assert.Equal(t, ports.SourcePos{Line: 2, Column: 4, Offset: 8}, se.Location.Start)
	assert.Equal(t, 3, se.Location.End.Line)
}

func TestParse_ColumnsCountUTF16(t *testing.T) {
	// The emoji is two UTF-16 code units.
	se := syntaxErr(t, errorOf(Parse("/*😀*/ {")))
	require.NotNil(t, se.Location)
	assert.Equal(t, `Expected selector but "{" found.`, se.Message)
	assert.Equal(t, 8, se.Location.Start.Column)
	assert.Equal(t, 9, se.Location.End.Column)
}

func TestParse_BareCaptureAtTopLevel(t *testing.T) {
	se := syntaxErr(t, errorOf(Parse("$x")))
	assert.Equal(t, `Expected "=" but end of input found.`, se.Message)
}

func TestParse_UnterminatedComment(t *testing.T) {
	se := syntaxErr(t, errorOf(Parse("div{$x} /* open")))
	assert.Contains(t, se.Message, `"*/"`)
}

func TestParse_StructuralErrorsHaveNoLocation(t *testing.T) {
	for src, msg := range map[string]string{
		"div@{$a} $b = 1":           "cannot be mixed",
		"div@{$a} span@{$b}":        "only one default",
		"div{ li@{$a} }":            "only allowed at top level",
		"a[href=$u] b{$x}":          "last compound",
		"ul[id=$id]@items{ li@{} }": "cannot be mixed",
	} {
		se := syntaxErr(t, errorOf(Parse(src)))
		assert.Nil(t, se.Location, "source: %q", src)
		assert.Contains(t, se.Message, msg, "source: %q", src)
	}
}

func TestParse_DefaultCaptureNestedInArray(t *testing.T) {
	_, err := Parse("table@{ tr@{ td@{ $cell } } }")
	assert.NoError(t, err)
}

func errorOf(_ *Program, err error) error { return err }
