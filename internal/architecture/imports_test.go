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

// layerRule lists the internal packages a layer must not import. Paths are
// relative to the module path. allow carves exceptions out of deny.
type layerRule struct {
	layer string
	deny  []string
	allow []string
}

var rules = []layerRule{
	{
		layer: "internal/domain/",
		deny: []string{
			"internal/platform/", "internal/data/", "internal/modules/", "internal/jobs/",
			"internal/http/", "internal/app", "internal/temporalx", "internal/analytics",
		},
	},
	{
		layer: "internal/platform/",
		deny: []string{
			"internal/domain", "internal/data/", "internal/modules/", "internal/jobs/",
			"internal/http/", "internal/app", "internal/temporalx", "internal/analytics",
		},
	},
	{
		layer: "internal/data/",
		deny:  []string{"internal/modules/", "internal/jobs/", "internal/http/", "internal/app", "internal/temporalx"},
	},
	{
		// Usecases enqueue index jobs but never run them.
		layer: "internal/modules/",
		deny:  []string{"internal/jobs/", "internal/http/", "internal/app", "internal/temporalx"},
		allow: []string{"internal/jobs/queue"},
	},
	{
		layer: "internal/jobs/",
		deny:  []string{"internal/http/", "internal/app", "internal/temporalx"},
	},
	{
		layer: "internal/temporalx/",
		deny:  []string{"internal/http/", "internal/app"},
	},
	{
		layer: "internal/http/",
		deny:  []string{"internal/app", "internal/data/"},
	},
}

func TestImportBoundaries(t *testing.T) {
	root, err := findModuleRoot()
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	fset := token.NewFileSet()
	var violations []string
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		rule, ok := ruleFor(rel)
		if !ok {
			return nil
		}

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil || !strings.HasPrefix(imp, modulePath+"/") {
				continue
			}
			if bad := rule.violates(strings.TrimPrefix(imp, modulePath+"/")); bad != "" {
				violations = append(violations, fmt.Sprintf("- %s imports %q (layer %s denies %s)", rel, imp, rule.layer, bad))
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n%s", strings.Join(violations, "\n"))
	}
}

func TestRulesCoverLayeredPackages(t *testing.T) {
	cases := map[string]bool{
		"internal/platform/locks/locks.go":     true,
		"internal/modules/itembank/service.go": true,
		"internal/app/app.go":                  false,
		"cmd/libctl/main.go":                   false,
	}
	for path, want := range cases {
		if _, got := ruleFor(path); got != want {
			t.Fatalf("ruleFor(%s): want=%v got=%v", path, want, got)
		}
	}
	modules, _ := ruleFor("internal/modules/x/y.go")
	if bad := modules.violates("internal/jobs/queue"); bad != "" {
		t.Fatalf("modules should reach the job queue, denied by %s", bad)
	}
	if bad := modules.violates("internal/jobs/worker"); bad == "" {
		t.Fatalf("modules must not reach the worker")
	}
}

func ruleFor(rel string) (layerRule, bool) {
	for _, r := range rules {
		if strings.HasPrefix(rel, r.layer) {
			return r, true
		}
	}
	return layerRule{}, false
}

func (r layerRule) violates(imp string) string {
	for _, a := range r.allow {
		if imp == a || strings.HasPrefix(imp, a+"/") {
			return ""
		}
	}
	for _, d := range r.deny {
		if strings.HasPrefix(imp, d) {
			return d
		}
	}
	return ""
}

func findModuleRoot() (string, error) {
	start, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir := start; ; {
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
		if mp, ok := strings.CutPrefix(line, "module "); ok {
			if mp = strings.TrimSpace(mp); mp == "" {
				return "", fmt.Errorf("empty module path in %s", goModPath)
			}
			return mp, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
