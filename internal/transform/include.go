package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

const (
	includePrefix = "@@"
	includeCall   = includePrefix + "include("
	maxInclude    = 32
)

// Include expands @@include('file', {context}) directives. Included paths are
// relative to the file containing the directive. Inside an included file
// @@key is replaced by the matching context value; keys may be dotted paths
// into nested objects.
func Include() Adapter {
	return Each("include", func(_ context.Context, f *File) (*File, error) {
		base := ""
		if f.Source != "" {
			base = filepath.Dir(f.Source)
		}
		o, err := expand(f.Data, base, "", 0)
		if err != nil {
			return nil, err
		}
		return &File{Path: f.Path, Source: f.Source, Data: o}, nil
	})
}

func expand(data []byte, base, vars string, depth int) ([]byte, error) {
	if depth > maxInclude {
		return nil, errors.New("includes nested too deep, is there a cycle?")
	}
	if vars != "" {
		data = substitute(data, vars)
	}
	var b bytes.Buffer
	for {
		i := bytes.Index(data, []byte(includeCall))
		if i == -1 {
			b.Write(data)
			return b.Bytes(), nil
		}
		b.Write(data[:i])
		name, ctxJSON, n, err := parseInclude(data[i+len(includeCall):])
		if err != nil {
			return nil, err
		}
		file := filepath.Join(base, filepath.FromSlash(name))
		child, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		out, err := expand(child, filepath.Dir(file), ctxJSON, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		b.Write(out)
		data = data[i+len(includeCall)+n:]
	}
}

// parseInclude parses the arguments of an include call, everything after
// "@@include(". It returns the file name, the optional JSON context and the
// number of bytes consumed including the closing parenthesis.
func parseInclude(s []byte) (name, vars string, n int, err error) {
	pos := skipSpace(s, 0)
	if pos >= len(s) || (s[pos] != '\'' && s[pos] != '"') {
		return "", "", 0, errors.New("include expects a quoted file name")
	}
	quote := s[pos]
	end := bytes.IndexByte(s[pos+1:], quote)
	if end == -1 {
		return "", "", 0, errors.New("unterminated include file name")
	}
	name = string(s[pos+1 : pos+1+end])
	pos = skipSpace(s, pos+end+2)
	if pos < len(s) && s[pos] == ',' {
		pos = skipSpace(s, pos+1)
		size := objectLen(s[pos:])
		if size == 0 {
			return "", "", 0, errors.New("include context must be a JSON object")
		}
		vars = string(s[pos : pos+size])
		if !gjson.Valid(vars) {
			return "", "", 0, fmt.Errorf("invalid include context %s", vars)
		}
		pos = skipSpace(s, pos+size)
	}
	if pos >= len(s) || s[pos] != ')' {
		return "", "", 0, errors.New("unterminated include directive")
	}
	return name, vars, pos + 1, nil
}

// objectLen returns the length of the brace balanced object at the start of
// s, or 0 when there is none.
func objectLen(s []byte) int {
	if len(s) == 0 || s[0] != '{' {
		return 0
	}
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return 0
}

func skipSpace(s []byte, i int) int {
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

// substitute replaces @@key references that resolve in vars. Unknown keys and
// include directives are left alone.
func substitute(data []byte, vars string) []byte {
	var b bytes.Buffer
	for {
		i := bytes.Index(data, []byte(includePrefix))
		if i == -1 {
			b.Write(data)
			return b.Bytes()
		}
		b.Write(data[:i])
		rest := data[i+len(includePrefix):]
		n := 0
		for n < len(rest) && isKeyByte(rest[n]) {
			n++
		}
		for n > 0 && rest[n-1] == '.' {
			n--
		}
		key := string(rest[:n])
		if key != "" && key != "include" {
			if v := gjson.Get(vars, key); v.Exists() {
				b.WriteString(v.String())
				data = rest[n:]
				continue
			}
		}
		b.WriteString(includePrefix)
		data = rest
	}
}

func isKeyByte(c byte) bool {
	return c == '_' || c == '.' || c == '-' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
