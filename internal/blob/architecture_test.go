package blob

import (
	"slices"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Storage drivers are reached through their facade packages only.
var driverBoundaries = []struct {
	driver  string
	allowed []string
}{
	{"clinicore/internal/infra/blob", []string{"clinicore/internal/blob"}},
	{"clinicore/internal/infra/persistence/sqlite", []string{"clinicore/internal/persistence"}},
	{"clinicore/internal/infra/persistence/postgres", []string{"clinicore/internal/persistence"}},
	{"clinicore/internal/infra/persistence/redis", []string{"clinicore/internal/persistence"}},
	{"clinicore/internal/infra/persistence/badger", []string{"clinicore/internal/persistence"}},
	{"clinicore/internal/infra/persistence/blobdoc", []string{"clinicore/internal/persistence"}},
}

func under(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func TestDriversOnlyImportedByFacades(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "clinicore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		// Test variants are named "path [path.test]".
		path, _, _ := strings.Cut(pkg.PkgPath, " ")
		for importPath := range pkg.Imports {
			for _, b := range driverBoundaries {
				if !under(importPath, b.driver) || under(path, b.driver) {
					continue
				}
				if slices.ContainsFunc(b.allowed, func(a string) bool { return under(path, a) }) {
					continue
				}
				violations = append(violations, path+" imports "+importPath)
			}
		}
	}
	slices.Sort(violations)
	violations = slices.Compact(violations)
	for _, v := range violations {
		t.Errorf("driver used outside its facade: %s", v)
	}
}
