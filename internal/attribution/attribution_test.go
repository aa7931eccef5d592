package attribution

import (
	"testing"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
)

const sampleDiff = `diff --git a/src/billing/invoice.ts b/src/billing/invoice.ts
index 1111111..2222222 100644
--- a/src/billing/invoice.ts
+++ b/src/billing/invoice.ts
@@ -1,3 +1,4 @@
 export function total() {
+  const x = 1;
   return 0;
 }
diff --git a/docs/notes.md b/docs/notes.md
index 3333333..4444444 100644
--- a/docs/notes.md
+++ b/docs/notes.md
@@ -1 +1,2 @@
 notes
+more notes
`

func mustChangeSet(t *testing.T, unified string) *ChangeSet {
	t.Helper()
	cs, err := ParseChangeSet([]byte(unified))
	if err != nil {
		t.Fatalf("ParseChangeSet() error = %v", err)
	}
	return cs
}

func TestParseChangeSet(t *testing.T) {
	cs := mustChangeSet(t, sampleDiff)

	if !cs.Contains("src/billing/invoice.ts") {
		t.Error("changed set should contain src/billing/invoice.ts")
	}
	if !cs.Contains("docs/notes.md") {
		t.Error("changed set should contain docs/notes.md")
	}
	if cs.Contains("src/auth/login.ts") {
		t.Error("changed set should not contain untouched files")
	}
}

func TestParseChangeSet_Empty(t *testing.T) {
	cs := mustChangeSet(t, "")
	if !cs.Empty() {
		t.Error("empty diff should produce empty changed set")
	}
}

func TestIsPreexisting_ChangedFileNeverPreexisting(t *testing.T) {
	c := NewClassifierFromChangeSet(mustChangeSet(t, sampleDiff))

	d := domain.Diagnostic{File: "src/billing/invoice.ts", Line: 2, Message: "unused"}
	if c.IsPreexisting(d) {
		t.Error("diagnostic in a changed file must never be pre-existing")
	}
}

func TestIsPreexisting_SiblingOfChangedFile(t *testing.T) {
	c := NewClassifierFromChangeSet(mustChangeSet(t, sampleDiff))

	// Same directory as a changed source file: attributable
	d := domain.Diagnostic{File: "src/billing/tax.ts", Line: 5, Message: "type error"}
	if c.IsPreexisting(d) {
		t.Error("sibling of changed source file should be attributable")
	}
}

func TestIsPreexisting_UnrelatedFile(t *testing.T) {
	c := NewClassifierFromChangeSet(mustChangeSet(t, sampleDiff))

	d := domain.Diagnostic{File: "src/auth/login.ts", Line: 5, Message: "old failure"}
	if !c.IsPreexisting(d) {
		t.Error("diagnostic in unrelated directory should be pre-existing")
	}

	// Markdown sibling does not make a directory attributable
	d2 := domain.Diagnostic{File: "docs/other.ts", Line: 1, Message: "x"}
	if !c.IsPreexisting(d2) {
		t.Error("non-source sibling changes should not attribute diagnostics")
	}
}

func TestIsPreexisting_EmptyChangeSet(t *testing.T) {
	c := NewClassifierFromChangeSet(mustChangeSet(t, ""))

	d := domain.Diagnostic{File: "src/a.ts", Line: 1, Message: "x"}
	if !c.IsPreexisting(d) {
		t.Error("with an empty changed set every diagnostic pre-exists")
	}
}

func TestIsPreexisting_FailedComputationDefaultsToAttributable(t *testing.T) {
	c := &Classifier{} // nil changed set, as after a failed git diff

	d := domain.Diagnostic{File: "src/a.ts", Line: 1, Message: "x"}
	if c.IsPreexisting(d) {
		t.Error("unknown changed set must classify nothing as pre-existing")
	}
}

func TestFilter(t *testing.T) {
	c := NewClassifierFromChangeSet(mustChangeSet(t, sampleDiff))

	diags := []domain.Diagnostic{
		{File: "src/billing/invoice.ts", Line: 1, Message: "a"},
		{File: "src/auth/login.ts", Line: 2, Message: "b"},
	}

	attributable, preexisting := c.Filter(diags)
	if len(attributable) != 1 || attributable[0].File != "src/billing/invoice.ts" {
		t.Errorf("attributable = %+v", attributable)
	}
	if len(preexisting) != 1 || preexisting[0].File != "src/auth/login.ts" {
		t.Errorf("preexisting = %+v", preexisting)
	}
}
