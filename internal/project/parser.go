package project

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// Command is one `name(args...)` invocation.
type Command struct {
	Name      string   `json:"name"` // lowercased
	RawArgs   string   `json:"raw_args"`
	Args      []string `json:"args"`
	LineStart int      `json:"line_start"`
	LineEnd   int      `json:"line_end"`
}

// AST is the ordered list of commands in a project file.
type AST struct {
	Commands []Command `json:"commands"`
}

// ParseFile reads and tokenizes the project file at path.
func ParseFile(path string) (*AST, error) {
	// #nosec G304 -- project file path is user-provided by design
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileSystemError("cannot open project file").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()
	ast, err := Parse(f)
	if err != nil {
		if ce, ok := errors.AsClassified(err); ok {
			return nil, ce.WithContext("path", path)
		}
		return nil, err
	}
	return ast, nil
}

// Parse tokenizes UTF-8 project text.
func Parse(r io.Reader) (*AST, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read project file").Build()
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, errors.ParseError("project file is not valid UTF-8").Build()
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.ParseError("project file is empty").Build()
	}
	s := &scanner{text: []rune(string(data)), line: 1}
	return s.parse()
}

type scanner struct {
	text []rune
	pos  int
	line int
}

func (s *scanner) parse() (*AST, error) {
	ast := &AST{}
	for {
		s.skipSpaces()
		if s.pos >= len(s.text) {
			return ast, nil
		}
		c := s.text[s.pos]
		if c == '#' {
			for s.pos < len(s.text) && s.text[s.pos] != '\n' {
				s.pos++
			}
			continue
		}
		if !isIdentStart(c) {
			s.pos++
			continue
		}

		start := s.line
		name := s.readIdent()
		s.skipSpaces()
		if s.pos >= len(s.text) || s.text[s.pos] != '(' {
			continue
		}
		s.pos++
		body, ok := s.readParenBlock()
		if !ok {
			return nil, errors.ParseError(fmt.Sprintf("unterminated argument list for %s()", name)).
				WithContext("line", start).
				Build()
		}
		ast.Commands = append(ast.Commands, Command{
			Name:      name,
			RawArgs:   body,
			Args:      SplitArgs(body),
			LineStart: start,
			LineEnd:   s.line,
		})
	}
}

func (s *scanner) skipSpaces() {
	for s.pos < len(s.text) && unicode.IsSpace(s.text[s.pos]) {
		if s.text[s.pos] == '\n' {
			s.line++
		}
		s.pos++
	}
}

func isIdentStart(c rune) bool { return unicode.IsLetter(c) || c == '_' }

func isIdent(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '-'
}

func (s *scanner) readIdent() string {
	var b strings.Builder
	for s.pos < len(s.text) && isIdent(s.text[s.pos]) {
		b.WriteRune(unicode.ToLower(s.text[s.pos]))
		s.pos++
	}
	return b.String()
}

// readParenBlock reads up to the ')' matching an already consumed '('.
// Nested parentheses are kept in the body. Outside double quotes a '#'
// comments out the rest of the line.
func (s *scanner) readParenBlock() (string, bool) {
	var b strings.Builder
	depth := 1
	quoted := false
	for s.pos < len(s.text) {
		c := s.text[s.pos]
		s.pos++
		switch {
		case c == '\n':
			s.line++
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '#':
			for s.pos < len(s.text) && s.text[s.pos] != '\n' {
				s.pos++
			}
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return b.String(), true
			}
		}
		b.WriteRune(c)
	}
	return b.String(), false
}

// SplitArgs splits an argument list on whitespace. Double quotes group
// words and are removed.
func SplitArgs(body string) []string {
	var out []string
	var cur strings.Builder
	quoted := false
	for _, c := range body {
		switch {
		case c == '"':
			quoted = !quoted
		case !quoted && unicode.IsSpace(c):
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(c)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
