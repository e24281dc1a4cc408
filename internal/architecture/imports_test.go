package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

type importRef struct {
	file string
	imp  string
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)

	type violation struct {
		importRef
		rule string
	}
	var violations []violation
	walkImports(t, root, func(ref importRef) {
		for _, bad := range disallowedImports(modulePath, layerFor(ref.file)) {
			if strings.HasPrefix(ref.imp, bad) {
				violations = append(violations, violation{importRef: ref, rule: bad})
				return
			}
		}
	})

	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("import boundary violations:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q (disallowed: %q)\n", v.file, v.imp, v.rule)
		}
		t.Fatal(b.String())
	}
}

func TestGraphDriverStaysBehindStore(t *testing.T) {
	root, _ := moduleRoot(t)

	var violations []importRef
	walkImports(t, root, func(ref importRef) {
		if !strings.HasPrefix(ref.imp, "github.com/neo4j/neo4j-go-driver/") {
			return
		}
		if strings.HasPrefix(ref.file, "internal/platform/neo4jdb/") || strings.HasPrefix(ref.file, "internal/data/graph/") {
			return
		}
		violations = append(violations, ref)
	})

	if len(violations) > 0 {
		var b strings.Builder
		b.WriteString("neo4j driver imported outside internal/platform/neo4jdb and internal/data/graph:\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s imports %q\n", v.file, v.imp)
		}
		t.Fatal(b.String())
	}
}

func layerFor(rel string) string {
	switch {
	case strings.HasPrefix(rel, "internal/domain/"):
		return "domain"
	case strings.HasPrefix(rel, "internal/platform/"):
		return "platform"
	case strings.HasPrefix(rel, "internal/data/"):
		return "data"
	case strings.HasPrefix(rel, "internal/ingest/"):
		return "ingest"
	case strings.HasPrefix(rel, "internal/pipeline/"):
		return "pipeline"
	default:
		return ""
	}
}

func disallowedImports(modulePath string, layer string) []string {
	internal := modulePath + "/internal/"
	switch layer {
	case "domain":
		return []string{
			internal + "platform/",
			internal + "data/",
			internal + "catalog",
			internal + "ingest",
			internal + "pipeline",
			internal + "source",
			internal + "app",
		}
	case "platform":
		return []string{
			internal + "data/",
			internal + "catalog",
			internal + "ingest",
			internal + "pipeline",
			internal + "source",
			internal + "transform",
			internal + "app",
		}
	case "data":
		return []string{
			internal + "ingest",
			internal + "pipeline",
			internal + "source",
			internal + "app",
		}
	case "ingest":
		return []string{
			internal + "pipeline",
			internal + "source",
			internal + "app",
		}
	case "pipeline":
		return []string{
			internal + "app",
		}
	default:
		return nil
	}
}

// walkImports calls fn for every import of every non-test Go file under internal/.
func walkImports(t *testing.T, root string, fn func(ref importRef)) {
	t.Helper()
	internalDir := filepath.Join(root, "internal")
	fset := token.NewFileSet()
	walkErr := filepath.WalkDir(internalDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "vendor", "node_modules", ".gocache":
				return filepath.SkipDir
			default:
				return nil
			}
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			if spec == nil || spec.Path == nil {
				continue
			}
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			fn(importRef{file: rel, imp: imp})
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return root, modulePath
}

func findModuleRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !strings.HasPrefix(line, "module ") {
			continue
		}
		mp := strings.TrimSpace(strings.TrimPrefix(line, "module "))
		if mp == "" {
			return "", fmt.Errorf("empty module path in %s", goModPath)
		}
		return mp, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
