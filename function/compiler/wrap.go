package compiler

import (
	"cmp"
	"errors"
	"slices"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/syntax"

	"github.com/openagua/go-evaluator/function"
)

const indent = "    "

// fileOptions are the dialect settings for expression text. Expressions are written as
// top-level code, so loops and if statements must be allowed outside functions when the
// text is first parsed on its own.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// wrapped is the result of preparing one expression for compilation.
type wrapped struct {
	program string
	params  []string
	refs    []string
}

// normalize makes equivalent texts hash alike: line endings, tabs, trailing whitespace,
// surrounding blank lines and common indentation are canonicalized. This applies to the
// lines of multi-line strings too.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\t", indent)

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	margin := -1
	for _, l := range lines {
		if l == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " "))
		if margin < 0 || n < margin {
			margin = n
		}
	}
	if margin > 0 {
		for i, l := range lines {
			if len(l) >= margin {
				lines[i] = l[margin:]
			}
		}
	}
	return strings.Join(lines, "\n")
}

// wrap turns normalized expression text into a program defining the routine. Only the
// context parameters the text names become parameters, and a trailing expression
// statement becomes the return value.
func wrap(text string, contextParams []string) (*wrapped, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &CompileError{Text: text, Msg: ErrEmptyExpression.Error(), Err: ErrEmptyExpression}
	}

	f, err := fileOptions.Parse("expression", text, 0)
	if err != nil {
		return nil, compileError(text, err, 0)
	}
	if len(f.Stmts) == 0 {
		return nil, &CompileError{Text: text, Msg: ErrEmptyExpression.Error(), Err: ErrEmptyExpression}
	}

	idents := make(map[string]bool)
	// lines continuing a multi-line string literal keep their text as written
	inString := make(map[int]bool)
	var visit func(n syntax.Node) bool
	visit = func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.Ident:
			idents[n.Name] = true
		case *syntax.Literal:
			if n.Token == syntax.STRING || n.Token == syntax.BYTES {
				start, end := n.Span()
				for l := start.Line + 1; l <= end.Line; l++ {
					inString[int(l)] = true
				}
			}
		case *syntax.DotExpr:
			// attribute names are not references
			syntax.Walk(n.X, visit)
			return false
		case *syntax.CallExpr:
			syntax.Walk(n.Fn, visit)
			for _, arg := range n.Args {
				if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
					syntax.Walk(kw.Y, visit)
					continue
				}
				syntax.Walk(arg, visit)
			}
			return false
		}
		return true
	}
	syntax.Walk(f, visit)

	w := &wrapped{}
	for _, p := range append(slices.Clone(contextParams), function.ParamKwargs) {
		if idents[p] && !slices.Contains(w.params, p) {
			w.params = append(w.params, p)
		}
	}
	for _, b := range []string{function.BuiltinGet, function.BuiltinGetLow, function.BuiltinReadCSV} {
		if idents[b] {
			w.refs = append(w.refs, b)
		}
	}

	lines := strings.Split(text, "\n")
	var returns []syntax.Position
	collectReturns(f.Stmts, &returns)
	slices.SortFunc(returns, func(a, b syntax.Position) int {
		return cmp.Or(cmp.Compare(b.Line, a.Line), cmp.Compare(b.Col, a.Col))
	})
	for _, pos := range returns {
		i := int(pos.Line) - 1
		if i < 0 || i >= len(lines) {
			continue
		}
		runes := []rune(lines[i])
		col := min(max(int(pos.Col)-1, 0), len(runes))
		lines[i] = string(runes[:col]) + "return " + string(runes[col:])
	}

	var b strings.Builder
	b.WriteString("def ")
	b.WriteString(function.RoutineName)
	b.WriteString("(")
	for i, p := range w.params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p)
		b.WriteString("=None")
	}
	b.WriteString("):\n")
	for i, l := range lines {
		if l != "" && !inString[i+1] {
			b.WriteString(indent)
		}
		b.WriteString(l)
		b.WriteString("\n")
	}
	w.program = b.String()
	return w, nil
}

// collectReturns finds the expression statements whose value is the result of a block:
// the last statement, or the last statements of each branch when the block ends in an if.
func collectReturns(stmts []syntax.Stmt, out *[]syntax.Position) {
	if len(stmts) == 0 {
		return
	}
	switch s := stmts[len(stmts)-1].(type) {
	case *syntax.ExprStmt:
		start, _ := s.Span()
		*out = append(*out, start)
	case *syntax.IfStmt:
		collectReturns(s.True, out)
		collectReturns(s.False, out)
	}
}

// compileError converts parser and resolver failures. lineShift is subtracted from the
// reported line to map positions in the wrapped program back to the expression text.
func compileError(text string, err error, lineShift int) *CompileError {
	var synErr syntax.Error
	if errors.As(err, &synErr) {
		return &CompileError{
			Text: text,
			Line: max(int(synErr.Pos.Line)-lineShift, 0),
			Col:  int(synErr.Pos.Col),
			Msg:  synErr.Msg,
			Err:  err,
		}
	}
	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) && len(resolveErrs) > 0 {
		first := resolveErrs[0]
		col := int(first.Pos.Col)
		if lineShift > 0 {
			col = max(col-len(indent), 1)
		}
		return &CompileError{
			Text: text,
			Line: max(int(first.Pos.Line)-lineShift, 0),
			Col:  col,
			Msg:  first.Msg,
			Err:  err,
		}
	}
	return &CompileError{Text: text, Msg: err.Error(), Err: err}
}
