package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(name), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSearchPathPrepend(t *testing.T) {
	base := NewSearchPath("/usr/lib/stoq")
	next := base.Prepend("/a").Prepend("/b")

	if !reflect.DeepEqual(next.Entries(), []string{"/b", "/a", "/usr/lib/stoq"}) {
		t.Errorf("Entries() = %v", next.Entries())
	}
	if base.Len() != 1 {
		t.Errorf("base modified: %v", base.Entries())
	}
	if !next.Contains("/a") || next.Contains("/c") {
		t.Error("Contains() mismatch")
	}
}

func TestSearchPathEntriesIsCopy(t *testing.T) {
	sp := NewSearchPath("/a")
	e := sp.Entries()
	e[0] = "/mutated"
	if sp.Entries()[0] != "/a" {
		t.Error("Entries() should return a copy")
	}
}

func TestParseSearchPathRoundTrip(t *testing.T) {
	sp := NewSearchPath("/a", "/b c", "/d")
	got := ParseSearchPath(sp.String() + string(os.PathListSeparator))
	if !reflect.DeepEqual(got.Entries(), sp.Entries()) {
		t.Errorf("ParseSearchPath() = %v, want %v", got.Entries(), sp.Entries())
	}
	if ParseSearchPath("").Len() != 0 {
		t.Error("empty string should parse to empty path")
	}
}

func TestScanBundles(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.egg")
	b := touch(t, dir, "b.whl")
	touch(t, dir, "c.txt")
	touch(t, dir, "noext")
	upper := touch(t, dir, "D.EGG")

	got, err := ScanBundles(dir, []string{".egg", ".whl"})
	if err != nil {
		t.Fatalf("ScanBundles() error = %v", err)
	}
	// os.ReadDir lists in name order: "D.EGG" sorts before "a.egg"
	want := []string{upper, a, b}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ScanBundles() = %v, want %v", got, want)
	}
}

func TestScanBundlesMultiDotSuffix(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.tar.gz")
	touch(t, dir, "b.gz")
	touch(t, dir, ".tar.gz")
	c := touch(t, dir, "c.TAR.GZ")

	got, err := ScanBundles(dir, []string{".tar.gz"})
	if err != nil {
		t.Fatalf("ScanBundles() error = %v", err)
	}
	want := []string{a, c}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ScanBundles() = %v, want %v", got, want)
	}
}

func TestScanBundlesMissingDir(t *testing.T) {
	_, err := ScanBundles(filepath.Join(t.TempDir(), "missing"), []string{".egg"})
	if err == nil {
		t.Fatal("ScanBundles() on missing dir should fail")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error %v should wrap a not-exist error", err)
	}
}

func TestRegisterExtensions(t *testing.T) {
	dir := t.TempDir()
	stoq := touch(t, dir, "stoq.egg")
	drivers := touch(t, dir, "stoqdrivers.egg")

	base := NewSearchPath("/app")
	got, added := RegisterExtensions(base, dir, []string{"stoq.egg", "kiwi.egg", "stoqdrivers.egg"}, nil)

	want := []string{drivers, stoq, "/app"}
	if !reflect.DeepEqual(got.Entries(), want) {
		t.Errorf("Entries() = %v, want %v", got.Entries(), want)
	}
	if !reflect.DeepEqual(added, []string{stoq, drivers}) {
		t.Errorf("added = %v", added)
	}
	for _, e := range got.Entries() {
		if strings.HasSuffix(e, "kiwi.egg") {
			t.Error("missing archive must not be registered")
		}
	}
}

func TestRegisterExtensionsTwiceKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "a.egg")
	b := touch(t, dir, "b.egg")
	names := []string{"a.egg", "b.egg"}

	sp, _ := RegisterExtensions(SearchPath{}, dir, names, nil)
	sp, _ = RegisterExtensions(sp, dir, names, nil)

	want := []string{b, a, b, a}
	if !reflect.DeepEqual(sp.Entries(), want) {
		t.Errorf("Entries() = %v, want %v", sp.Entries(), want)
	}
	if sp.Count(a) != 2 || sp.Count(b) != 2 {
		t.Errorf("each path should appear once per call: %v", sp.Entries())
	}
}

func TestRegisterExtensionsSkipsUnsafeNames(t *testing.T) {
	calls := 0
	exists := func(string) bool { calls++; return true }

	sp, added := RegisterExtensions(SearchPath{}, "/data", []string{"../etc/passwd", "", "ok.egg"}, exists)
	if sp.Len() != 1 || len(added) != 1 {
		t.Errorf("Entries() = %v", sp.Entries())
	}
	if calls != 1 {
		t.Errorf("exists called %d times, want 1", calls)
	}
}

func TestRegisterExtensionsMissingDirIsNotAnError(t *testing.T) {
	sp, added := RegisterExtensions(NewSearchPath("/app"), filepath.Join(t.TempDir(), "nope"), []string{"stoq.egg"}, nil)
	if sp.Len() != 1 || len(added) != 0 {
		t.Errorf("Entries() = %v, added = %v", sp.Entries(), added)
	}
}
