package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingT struct {
	msg string
}

func (r *recordingT) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestPredicates(t *testing.T) {
	assert.True(t, DomainImportForbidden("clinicore/pkg/domain"))
	assert.True(t, DomainImportForbidden("example.com/pkg/domain@v1.2.3"))
	assert.False(t, DomainImportForbidden("example.com/pkg/domainutil"))
	assert.False(t, DomainImportForbidden("example.com/pkg/domain/sub"))

	assert.True(t, InternalImportForbidden("clinicore/internal/core"))
	assert.False(t, InternalImportForbidden("clinicore/pkg/domain"))

	forbidden := PackagesForbidden("internal/core", "/internal/sales/")
	assert.True(t, forbidden("clinicore/internal/core"))
	assert.True(t, forbidden("clinicore/internal/sales/sub"))
	assert.False(t, forbidden("clinicore/internal/coreutil"))
	assert.False(t, forbidden("clinicore/internal/audit"))
}

func writeGo(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"clinicore/internal/core\"\n)\nvar _ = fmt.Sprint\nvar _ = core.Open\n")
	writeGo(t, dir, "a_test.go", "package tmp\nimport \"clinicore/internal/sales\"\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))
	writeGo(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport \"clinicore/internal/sales\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("import"), 0o600))

	viols, err := directImportViolations(dir, PackagesForbidden("internal/core", "internal/sales"))
	require.NoError(t, err)
	assert.Equal(t, []string{"clinicore/internal/core (in a.go)"}, viols)

	AssertNoDirectImports(t, dir, PackagesForbidden("internal/audit"), "clean")
}

func TestDirectImportViolationsErrors(t *testing.T) {
	_, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InternalImportForbidden)
	assert.Error(t, err)

	dir := t.TempDir()
	writeGo(t, dir, "broken.go", "package")
	_, err = directImportViolations(dir, InternalImportForbidden)
	assert.Error(t, err)
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\n  clinicore/pkg/domain\n\nclinicore/internal/core\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", InternalImportForbidden)
	require.NoError(t, err)
	assert.Equal(t, []string{"clinicore/internal/core"}, viols)

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	_, out, err := transitiveDependencyViolations(".", InternalImportForbidden)
	require.Error(t, err)
	assert.Equal(t, "boom", string(out))
}

func TestFailIfViolations(t *testing.T) {
	var r recordingT
	failIfViolations(&r, "forbidden direct imports", "layering", nil)
	assert.Empty(t, r.msg)

	failIfViolations(&r, "forbidden direct imports", "layering", []string{"a", "b"})
	assert.Equal(t, "forbidden direct imports detected (layering):\na\nb", r.msg)
}
