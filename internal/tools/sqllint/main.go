// Command sqllint checks that every SQL statement declared as a Go constant or
// variable opens with a unique "--sql <uuid>" marker line. SQLRunner refuses
// unmarked statements at runtime; this catches them before they ship.
package main

import (
	"errors"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlKeyword = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with|create\s+(table|index|unique\s+index)|alter\s+table)\b`)
	markerLine = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// statement is an SQL-looking string literal bound to a declared name.
type statement struct {
	pos    token.Position
	name   string
	marker string // empty when the first line is not a valid marker
}

type finding struct {
	pos     token.Position
	name    string
	message string
}

func (f finding) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", f.pos.Filename, f.pos.Line, f.message, f.name)
}

type linter struct {
	fset     *token.FileSet
	owners   map[string]statement
	findings []finding
}

func newLinter() *linter {
	return &linter{fset: token.NewFileSet(), owners: make(map[string]statement)}
}

func (l *linter) check(path string) error {
	stmts, err := l.statements(path)
	if err != nil {
		return err
	}
	for _, st := range stmts {
		if st.marker == "" {
			l.findings = append(l.findings, finding{pos: st.pos, name: st.name, message: "missing or invalid --sql <uuid> marker"})
			continue
		}
		if owner, taken := l.owners[st.marker]; taken {
			l.findings = append(l.findings, finding{
				pos:     st.pos,
				name:    st.name,
				message: fmt.Sprintf("marker already used by %s at %s:%d", owner.name, owner.pos.Filename, owner.pos.Line),
			})
			continue
		}
		l.owners[st.marker] = st
	}
	return nil
}

// statements returns every SQL literal declared in path.
func (l *linter) statements(path string) ([]statement, error) {
	file, err := parser.ParseFile(l.fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	var out []statement
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range spec.Values {
			lit, ok := value.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			text, err := literalText(lit.Value)
			if err != nil || !sqlKeyword.MatchString(text) {
				continue
			}
			st := statement{pos: l.fset.Position(lit.Pos()), name: specName(spec, i)}
			if head := leadingLine(text); markerLine.MatchString(head) {
				st.marker = strings.TrimPrefix(head, "--sql ")
			}
			out = append(out, st)
		}
		return true
	})
	return out, nil
}

func (l *linter) report(w io.Writer) bool {
	if len(l.findings) == 0 {
		return true
	}
	sort.SliceStable(l.findings, func(i, j int) bool {
		a, b := l.findings[i].pos, l.findings[j].pos
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		return a.Line < b.Line
	})
	fmt.Fprintf(w, "sqllint: %d marker violation(s)\n", len(l.findings))
	for _, f := range l.findings {
		fmt.Fprintf(w, "  %s\n", f)
	}
	return false
}

// goFiles expands targets into the Go files to lint. Hidden, underscore and
// vendored directories are skipped.
func goFiles(targets []string) ([]string, error) {
	var files []string
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if filepath.Ext(target) == ".go" {
				files = append(files, target)
			}
			continue
		}
		err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != target && skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) == ".go" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
		name == "vendor" || name == "node_modules" || name == "testdata"
}

var errViolations = errors.New("sql marker violations")

func run(args []string, stderr io.Writer) error {
	flags := flag.NewFlagSet("sqllint", flag.ContinueOnError)
	flags.SetOutput(stderr)
	if err := flags.Parse(args); err != nil {
		return err
	}
	targets := flags.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	files, err := goFiles(targets)
	if err != nil {
		return err
	}
	l := newLinter()
	for _, path := range files {
		if err := l.check(path); err != nil {
			return err
		}
	}
	if !l.report(stderr) {
		return errViolations
	}
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, errViolations) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		}
		os.Exit(1)
	}
}

func leadingLine(s string) string {
	s = strings.TrimLeft(s, "\r\n\t ")
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func literalText(lit string) (string, error) {
	if strings.HasPrefix(lit, "`") {
		return strings.Trim(lit, "`"), nil
	}
	return strconv.Unquote(lit)
}

// specName names the i-th value of spec, falling back to the joined names
// when the counts differ.
func specName(spec *ast.ValueSpec, i int) string {
	if len(spec.Names) == len(spec.Values) {
		return spec.Names[i].Name
	}
	names := make([]string, 0, len(spec.Names))
	for _, id := range spec.Names {
		names = append(names, id.Name)
	}
	return strings.Join(names, ",")
}
