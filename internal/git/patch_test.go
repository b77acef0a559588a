package git

import (
	"strings"
	"testing"
)

func TestPatchFiles(t *testing.T) {
	t.Parallel()

	patch := strings.Join([]string{
		"diff --git a/foo.txt b/foo.txt",
		"index 1111111..2222222 100644",
		"--- a/foo.txt",
		"+++ b/foo.txt",
		"@@ -1,2 +1,2 @@",
		" keep",
		"-old",
		"+new",
		"+more",
		`diff --git "a/space name.txt" "b/space name.txt"`,
		"new file mode 100644",
		"@@ -0,0 +1 @@",
		"+x",
		`diff --git "a/quo\"te.txt" "b/quo\"te.txt"`,
		"Binary files a/quo\"te.txt and b/quo\"te.txt differ",
		`diff --git "a/caf\303\251" "b/caf\303\251"`,
		"diff --git a/onlyone",
		"+ignored",
	}, "\n")

	got := PatchFiles(patch)
	want := []PatchFile{
		{Path: "foo.txt", Line: 1, Added: 2, Deleted: 1},
		{Path: "space name.txt", Line: 10, Added: 1},
		{Path: `quo"te.txt`, Line: 14, Binary: true},
		{Path: "café", Line: 16},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d files, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("file %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPatchFilesEmpty(t *testing.T) {
	t.Parallel()

	if got := PatchFiles(""); len(got) != 0 {
		t.Fatalf("expected no files, got %+v", got)
	}
}
