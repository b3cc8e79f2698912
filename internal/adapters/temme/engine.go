// Package temme is the selector engine adapter. It implements a subset of the
// temme selector language on top of goquery and cascadia:
//
//	// comment
//	.list li@items {
//	  a[href=$url] { $title|trim }
//	  $kind = "link";
//	}
//
// Parsing and evaluation are separate steps so the diagnostics path can
// validate text without any markup.
package temme

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	nethtml "golang.org/x/net/html"

	"github.com/corey/temmekit/internal/ports"
)

// Markup is a parsed HTML document ready for evaluation.
type Markup struct {
	doc  *goquery.Document
	size int
}

// Size returns the byte length of the source HTML.
func (m *Markup) Size() int { return m.size }

// Engine implements ports.SelectorParser and ports.Evaluator. Compiled CSS
// selectors are cached across calls since watch mode re-evaluates the same
// compounds on every edit.
type Engine struct {
	mu    sync.Mutex
	cache map[string]cascadia.Selector
}

// New creates an engine.
func New() *Engine {
	return &Engine{cache: make(map[string]cascadia.Selector)}
}

var (
	_ ports.SelectorParser = (*Engine)(nil)
	_ ports.Evaluator      = (*Engine)(nil)
)

// Parse validates selector text.
func (e *Engine) Parse(selector string) error {
	_, err := Parse(selector)
	return err
}

// Load parses HTML.
func (e *Engine) Load(html string) (ports.Markup, error) {
	root, err := nethtml.Parse(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Markup{doc: goquery.NewDocumentFromNode(root), size: len(html)}, nil
}

// Evaluate runs selector against markup. Parse failures come back as
// *ports.SyntaxError, everything after that as *ports.EvaluationError.
func (e *Engine) Evaluate(m ports.Markup, selector string) (any, error) {
	mk, ok := m.(*Markup)
	if !ok {
		return nil, &ports.EvaluationError{Message: fmt.Sprintf("markup %T was not loaded by this engine", m)}
	}
	prog, err := Parse(selector)
	if err != nil {
		return nil, err
	}
	return e.level(mk.doc.Selection, prog.Stmts)
}

// EvaluateHTML is Load followed by Evaluate.
func (e *Engine) EvaluateHTML(html, selector string) (any, error) {
	m, err := e.Load(html)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(m, selector)
}

// level evaluates stmts against scope. The result is an *Object, or a []any
// when the level holds a default array capture.
func (e *Engine) level(scope *goquery.Selection, stmts []Stmt) (any, error) {
	obj := NewObject()
	var defaultArr []any
	for _, st := range stmts {
		switch s := st.(type) {
		case *Assignment:
			obj.Set(s.Name, s.Value)

		case *ContentCapture:
			v, err := applyFilters(scope.Text(), s.Filters)
			if err != nil {
				return nil, err
			}
			obj.Set(s.Name, v)

		case *SelectorRule:
			matches, err := e.find(scope, s)
			if err != nil {
				return nil, err
			}
			if s.Array {
				arr, err := e.array(matches, s)
				if err != nil {
					return nil, err
				}
				if s.ArrayName == "" {
					defaultArr = arr
				} else {
					obj.Set(s.ArrayName, arr)
				}
				continue
			}
			first := matches.First()
			if first.Length() == 0 {
				continue
			}
			if err := captureAttrs(first, s, obj); err != nil {
				return nil, err
			}
			child, err := e.level(first, s.Children)
			if err != nil {
				return nil, err
			}
			if co, ok := child.(*Object); ok {
				obj.merge(co)
			}
		}
	}
	if defaultArr != nil {
		return defaultArr, nil
	}
	return obj, nil
}

// array builds one value per match: the element's attribute captures plus
// its children's result.
func (e *Engine) array(matches *goquery.Selection, s *SelectorRule) ([]any, error) {
	arr := make([]any, 0, matches.Length())
	var ferr error
	matches.EachWithBreak(func(_ int, m *goquery.Selection) bool {
		obj := NewObject()
		if err := captureAttrs(m, s, obj); err != nil {
			ferr = err
			return false
		}
		child, err := e.level(m, s.Children)
		if err != nil {
			ferr = err
			return false
		}
		if co, ok := child.(*Object); ok {
			obj.merge(co)
			arr = append(arr, obj)
		} else {
			arr = append(arr, child)
		}
		return true
	})
	if ferr != nil {
		return nil, ferr
	}
	return arr, nil
}

func captureAttrs(sel *goquery.Selection, s *SelectorRule, obj *Object) error {
	for _, c := range s.captures() {
		raw, ok := sel.Attr(c.Attr)
		if !ok {
			continue
		}
		v, err := applyFilters(raw, c.Filters)
		if err != nil {
			return err
		}
		obj.Set(c.Name, v)
	}
	return nil
}

func (e *Engine) find(scope *goquery.Selection, s *SelectorRule) (*goquery.Selection, error) {
	sel, err := e.compile(s.CSS())
	if err != nil {
		return nil, err
	}
	return scope.FindMatcher(sel), nil
}

func (e *Engine) compile(css string) (cascadia.Selector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sel, ok := e.cache[css]; ok {
		return sel, nil
	}
	sel, err := cascadia.Compile(css)
	if err != nil {
		return nil, &ports.EvaluationError{Message: fmt.Sprintf("invalid selector %q", css), Err: err}
	}
	e.cache[css] = sel
	return sel, nil
}
