package vensim

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokName
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of equation"
	case tokNumber:
		return "number"
	case tokName:
		return "name"
	case tokOp:
		return "operator"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokComma:
		return "','"
	}
	return "token"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits an equation right-hand side into tokens. Vensim names may
// contain inner spaces ("Stock Level"), so a name runs across whitespace as
// long as another name character follows.
func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case r == '[':
			toks = append(toks, token{tokLBracket, "[", i})
			i++
		case r == ']':
			toks = append(toks, token{tokRBracket, "]", i})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case strings.ContainsRune("+-*/^=", r):
			toks = append(toks, token{tokOp, string(r), i})
			i++
		case r == '<' || r == '>':
			start := i
			i++
			if i < len(rs) && (rs[i] == '=' || (r == '<' && rs[i] == '>')) {
				i++
			}
			toks = append(toks, token{tokOp, string(rs[start:i]), start})
		case r == ':':
			start := i
			j := i + 1
			for j < len(rs) && unicode.IsLetter(rs[j]) {
				j++
			}
			if j >= len(rs) || rs[j] != ':' || j == i+1 {
				return nil, &SyntaxError{Pos: start, Msg: "malformed logical operator"}
			}
			op := strings.ToUpper(string(rs[start : j+1]))
			switch op {
			case ":AND:", ":OR:", ":NOT:":
			default:
				return nil, &SyntaxError{Pos: start, Msg: "unsupported operator " + op}
			}
			toks = append(toks, token{tokOp, op, start})
			i = j + 1
		case r == '"':
			start := i
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				j++
			}
			if j >= len(rs) {
				return nil, &SyntaxError{Pos: start, Msg: "unterminated quoted name"}
			}
			toks = append(toks, token{tokName, string(rs[start : j+1]), start})
			i = j + 1
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			i = scanNumber(rs, i)
			toks = append(toks, token{tokNumber, string(rs[start:i]), start})
		case isNameStart(r):
			start := i
			i = scanName(rs, i)
			toks = append(toks, token{tokName, strings.TrimSpace(string(rs[start:i])), start})
		default:
			return nil, &SyntaxError{Pos: i, Msg: "unexpected character " + string(r)}
		}
	}
	toks = append(toks, token{tokEOF, "", len(rs)})
	return toks, nil
}

func scanNumber(rs []rune, i int) int {
	for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
		i++
	}
	if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
		j := i + 1
		if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
			j++
		}
		if j < len(rs) && unicode.IsDigit(rs[j]) {
			i = j
			for i < len(rs) && unicode.IsDigit(rs[i]) {
				i++
			}
		}
	}
	return i
}

func isNameStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '$'
}

func isNamePart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' || r == '\'' || r == '.' || r == '&' || r == '%' || r == '#'
}

func scanName(rs []rune, i int) int {
	end := i
	for i < len(rs) {
		switch {
		case isNamePart(rs[i]):
			i++
			end = i
		case rs[i] == ' ' || rs[i] == '\t' || rs[i] == '\n' || rs[i] == '\r':
			j := i
			for j < len(rs) && (rs[j] == ' ' || rs[j] == '\t' || rs[j] == '\n' || rs[j] == '\r') {
				j++
			}
			if j < len(rs) && isNamePart(rs[j]) {
				i = j
				continue
			}
			return end
		default:
			return end
		}
	}
	return end
}

// nameKey folds a Vensim name to its identity: quotes dropped, case
// ignored, and runs of spaces and underscores treated as one separator.
func nameKey(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		name = name[1 : len(name)-1]
	}
	var b strings.Builder
	sep := false
	for _, r := range strings.TrimSpace(name) {
		if r == ' ' || r == '_' || r == '\t' || r == '\n' || r == '\r' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte(' ')
		}
		sep = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// displayName is the spelling a variable is reported under: the declared
// text with whitespace runs collapsed to single spaces.
func displayName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}
