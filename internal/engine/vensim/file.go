package vensim

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// sketchMarker starts the diagram section that follows the equations.
const sketchMarker = `\\\---///`

// continuations joins lines Vensim wraps with a trailing backslash.
var continuations = strings.NewReplacer("\\\r\n", " ", "\\\n", " ")

// equation is one raw "lhs = rhs ~ units ~ comment |" entry.
type equation struct {
	name string
	rhs  string
	// lookup is set for standalone lookup definitions "name( (x,y), ... )";
	// rhs then holds the parenthesised table.
	lookup bool
	// index is the position among the file's equations.
	index int
}

// splitEquations extracts the equations of an .mdl file in declaration
// order, skipping the encoding header, group markers, units, comments and
// the sketch section.
func splitEquations(src []byte) ([]equation, error) {
	src = bytes.TrimPrefix(src, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(src) {
		return nil, &SyntaxError{Msg: "model file is not valid UTF-8"}
	}
	text := string(src)
	if i := strings.Index(text, sketchMarker); i >= 0 {
		text = text[:i]
	}
	text = continuations.Replace(text)
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") {
		if end := strings.Index(text, "}"); end >= 0 {
			text = text[end+1:]
		}
	}

	var eqs []equation
	for _, chunk := range strings.Split(text, "|") {
		body := chunk
		if i := strings.Index(body, "~"); i >= 0 {
			body = body[:i]
		}
		body = strings.TrimSpace(body)
		if body == "" || strings.HasPrefix(body, "*") {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(body), ":MACRO:") || strings.HasPrefix(strings.ToUpper(body), ":END OF MACRO:") {
			return nil, &SyntaxError{Msg: "macros are not supported", Err: ErrUnsupported}
		}
		eq, err := splitEquation(body)
		if err != nil {
			return nil, err
		}
		eq.index = len(eqs)
		eqs = append(eqs, eq)
	}
	if len(eqs) == 0 {
		return nil, &SyntaxError{Msg: "model defines no equations"}
	}
	return eqs, nil
}

func splitEquation(body string) (equation, error) {
	eqIdx := indexOutsideQuotes(body, '=')
	parenIdx := indexOutsideQuotes(body, '(')

	if parenIdx >= 0 && (eqIdx < 0 || parenIdx < eqIdx) {
		name := strings.TrimSpace(body[:parenIdx])
		if name == "" {
			return equation{}, &SyntaxError{Msg: fmt.Sprintf("equation %q has no name", firstLine(body))}
		}
		return equation{name: name, rhs: body[parenIdx:], lookup: true}, nil
	}
	if eqIdx < 0 {
		return equation{}, &SyntaxError{
			Variable: firstLine(body),
			Msg:      "data variables without an equation are not supported",
			Err:      ErrUnsupported,
		}
	}

	lhs := body[:eqIdx]
	rhs := strings.TrimSpace(body[eqIdx+1:])
	if strings.HasSuffix(lhs, ":") {
		return equation{}, &SyntaxError{Variable: strings.TrimSpace(strings.TrimSuffix(lhs, ":")), Msg: "data equations (:=) are not supported", Err: ErrUnsupported}
	}
	name := strings.TrimSpace(lhs)
	switch {
	case name == "":
		return equation{}, &SyntaxError{Msg: fmt.Sprintf("equation %q has no name", firstLine(body))}
	case strings.ContainsAny(name, "[]"):
		return equation{}, &SyntaxError{Variable: name, Msg: "subscripted variables are not supported", Err: ErrUnsupported}
	case strings.Contains(name, ":"):
		return equation{}, &SyntaxError{Variable: name, Msg: "equation keywords are not supported", Err: ErrUnsupported}
	case rhs == "":
		return equation{}, &SyntaxError{Variable: name, Msg: "missing right-hand side"}
	}
	if strings.HasPrefix(nameKey(rhs), "a function of") {
		return equation{}, &SyntaxError{Variable: name, Msg: "incomplete equation (A FUNCTION OF)", Err: ErrUnsupported}
	}
	return equation{name: name, rhs: rhs}, nil
}

// indexOutsideQuotes finds the first c that is not inside a quoted name.
func indexOutsideQuotes(s string, c byte) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case c:
			if !quoted {
				return i
			}
		}
	}
	return -1
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
