package temme

import "github.com/corey/temmekit/internal/ports"

// check enforces the rules the grammar cannot express. A default array
// capture ("sel@{...}") turns its level into an array, so it has to be the
// only thing writing to that level.
func check(prog *Program) error {
	return checkLevel(prog.Stmts, true, 0)
}

// checkLevel validates one level. inherited counts captures that already
// write into this level from outside (attribute captures of an array rule
// land in each element's object).
func checkLevel(stmts []Stmt, allowDefault bool, inherited int) error {
	defaults, others := 0, inherited
	for _, st := range stmts {
		switch s := st.(type) {
		case *SelectorRule:
			for i, part := range s.Parts {
				if len(part.Captures) > 0 && i != len(s.Parts)-1 {
					return structural("attribute captures are only allowed in the last compound selector")
				}
			}
			if s.Array {
				if s.ArrayName == "" {
					defaults++
				} else {
					others++
				}
				if err := checkLevel(s.Children, true, len(s.captures())); err != nil {
					return err
				}
				continue
			}
			if writes(s) {
				others++
			}
			if err := checkLevel(s.Children, false, 0); err != nil {
				return err
			}
		case *ContentCapture, *Assignment:
			others++
		}
	}
	switch {
	case defaults > 0 && !allowDefault:
		return structural("default array capture is only allowed at top level or directly inside an array capture")
	case defaults > 1:
		return structural("only one default array capture is allowed per level")
	case defaults == 1 && others > 0:
		return structural("default array capture cannot be mixed with other captures")
	}
	return nil
}

// writes reports whether a non-array rule puts anything into the enclosing
// object, either itself or through its non-array descendants.
func writes(r *SelectorRule) bool {
	if len(r.captures()) > 0 {
		return true
	}
	for _, st := range r.Children {
		switch c := st.(type) {
		case *ContentCapture, *Assignment:
			return true
		case *SelectorRule:
			if c.Array || writes(c) {
				return true
			}
		}
	}
	return false
}

func structural(msg string) error {
	return &ports.SyntaxError{Message: msg}
}
