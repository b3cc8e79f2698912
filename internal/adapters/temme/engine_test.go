package temme

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/temmekit/internal/ports"
)

// =============================================================================
// Evaluation: captures, arrays, filters, ordered output, evaluation errors
// =============================================================================

const listHTML = `<html><body>
<h1>Catalog</h1>
<ul class="list">
  <li><a href="/1">  One  </a><span class="p"> 12.5 </span></li>
  <li><a href="/2">Two</a><span class="p">7</span></li>
</ul>
</body></html>`

func evalJSON(t *testing.T, html, selector string) string {
	t.Helper()
	got, err := New().EvaluateHTML(html, selector)
	require.NoError(t, err)
	b, err := json.Marshal(got)
	require.NoError(t, err)
	return string(b)
}

func TestEvaluate_ContentCapture(t *testing.T) {
	assert.Equal(t, `{"a":"hi"}`, evalJSON(t, `<div class="a">hi</div>`, ".a{$a}"))
}

func TestEvaluate_ArrayWithAttributeCaptureKeepsOrder(t *testing.T) {
	got := evalJSON(t, listHTML, "li@items{ a[href=$url]{ $title|trim } .p{ $price|Number } }")
	want := `{"items":[{"url":"/1","title":"One","price":12.5},{"url":"/2","title":"Two","price":7}]}`
	assert.Equal(t, want, got)
}

func TestEvaluate_DefaultArray(t *testing.T) {
	assert.Equal(t, `[{"t":"One"},{"t":"Two"}]`, evalJSON(t, listHTML, "li a@{ $t|trim }"))
}

func TestEvaluate_DefaultArrayNoMatchIsEmpty(t *testing.T) {
	assert.Equal(t, `[]`, evalJSON(t, listHTML, "table@{ $x }"))
}

func TestEvaluate_NestedDefaultArrays(t *testing.T) {
	html := `<table><tr><td>a</td><td>b</td></tr><tr><td>c</td></tr></table>`
	assert.Equal(t, `[[{"c":"a"},{"c":"b"}],[{"c":"c"}]]`, evalJSON(t, html, "tr@{ td@{ $c } }"))
}

func TestEvaluate_AssignmentAndMissingMatch(t *testing.T) {
	got := evalJSON(t, listHTML, `$kind = "page"; h1{$title} footer{$missing}`)
	assert.Equal(t, `{"kind":"page","title":"Catalog"}`, got)
}

func TestEvaluate_FirstMatchOnlyForPlainRule(t *testing.T) {
	assert.Equal(t, `{"t":"Two"}`, evalJSON(t, listHTML, "li + li a{ $t }"))
	assert.Equal(t, `{"url":"/1"}`, evalJSON(t, listHTML, "a[href=$url]"))
}

func TestEvaluate_StringFilters(t *testing.T) {
	html := `<p>  Hello
	   World  </p>`
	got, err := New().EvaluateHTML(html, "p{ $u|squash|upper; $l|trim|lower }")
	require.NoError(t, err)
	obj := got.(*Object)
	if diff := cmp.Diff([]string{"u", "l"}, obj.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	u, _ := obj.Get("u")
	assert.Equal(t, "HELLO WORLD", u)
	l, _ := obj.Get("l")
	assert.Equal(t, "hello\n\t   world", l)
}

func evalErr(t *testing.T, html, selector string) *ports.EvaluationError {
	t.Helper()
	_, err := New().EvaluateHTML(html, selector)
	require.Error(t, err)
	var ee *ports.EvaluationError
	require.True(t, errors.As(err, &ee), "want *EvaluationError, got %T", err)
	return ee
}

func TestEvaluate_UnknownFilter(t *testing.T) {
	ee := evalErr(t, `<div>x</div>`, "div{$x|nosuch}")
	assert.Contains(t, ee.Error(), `unknown filter "nosuch"`)
}

func TestEvaluate_UnknownFilterOnlyFailsWhenReached(t *testing.T) {
	assert.Equal(t, `{}`, evalJSON(t, `<div>x</div>`, "section{$x|nosuch}"))
}

func TestEvaluate_NumberRejectsText(t *testing.T) {
	ee := evalErr(t, `<b>twelve</b>`, "b{$n|Number}")
	assert.Contains(t, ee.Error(), "Number")
}

func TestEvaluate_FilterTypeMismatch(t *testing.T) {
	ee := evalErr(t, `<b>12</b>`, "b{$n|Number|trim}")
	assert.Contains(t, ee.Error(), "expects a string")
}

func TestEvaluate_InvalidCSS(t *testing.T) {
	ee := evalErr(t, `<div>x</div>`, "div:nosuchpseudo{$x}")
	assert.Contains(t, ee.Error(), "invalid selector")
	assert.NotNil(t, errors.Unwrap(ee))
}

func TestEvaluate_SyntaxErrorBeforeEvaluation(t *testing.T) {
	_, err := New().EvaluateHTML(`<div>x</div>`, "div{")
	assert.True(t, ports.IsSyntaxError(err))
}

type foreignMarkup struct{}

func (foreignMarkup) Size() int { return 0 }

func TestEvaluate_ForeignMarkup(t *testing.T) {
	_, err := New().Evaluate(foreignMarkup{}, ".a{$a}")
	var ee *ports.EvaluationError
	assert.True(t, errors.As(err, &ee))
}

func TestLoad_ReusedAcrossSelectors(t *testing.T) {
	e := New()
	m, err := e.Load(listHTML)
	require.NoError(t, err)
	assert.Equal(t, len(listHTML), m.Size())

	a, err := e.Evaluate(m, "h1{$t}")
	require.NoError(t, err)
	b, err := e.Evaluate(m, "h1{$t}")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, e.cache, 1)
}

func TestEngine_ParsePort(t *testing.T) {
	e := New()
	assert.NoError(t, e.Parse(".a{$a}"))
	assert.True(t, ports.IsSyntaxError(e.Parse("div{")))
}

func TestObject_MarshalIndentKeepsOrder(t *testing.T) {
	o := NewObject()
	o.Set("z", 1)
	o.Set("a", []any{"x"})
	o.Set("z", 2)
	b, err := json.MarshalIndent(o, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"z\": 2,\n  \"a\": [\n    \"x\"\n  ]\n}", string(b))
	assert.Equal(t, 2, o.Len())
}
