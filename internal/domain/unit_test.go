package domain

import "testing"

func TestUnitOfWork_Validate(t *testing.T) {
	tests := []struct {
		name    string
		unit    UnitOfWork
		wantErr bool
	}{
		{"valid", UnitOfWork{ID: "src/billing/invoice.ts", Command: []string{"eslint"}}, false},
		{"branch unit", UnitOfWork{ID: "feat/billing-E02", Command: []string{"tsc"}}, false},
		{"missing id", UnitOfWork{Command: []string{"eslint"}}, true},
		{"missing command", UnitOfWork{ID: "src/a.ts"}, true},
		{"whitespace in id", UnitOfWork{ID: "src/a b.ts", Command: []string{"eslint"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.unit.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUnitOfWork_Key(t *testing.T) {
	a := UnitOfWork{ID: "src/a.ts", Branch: "main"}
	b := UnitOfWork{ID: "src/a.ts", Branch: "feat/x"}
	if a.Key() == b.Key() {
		t.Error("keys for different branches should differ")
	}

	c := UnitOfWork{ID: "src/a.ts", Branch: "main"}
	if a.Key() != c.Key() {
		t.Error("keys for same (branch, unit) should match")
	}
}

func TestSameDirectory(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"src/billing/invoice.ts", "src/billing/tax.ts", true},
		{"src/billing/invoice.ts", "src/auth/login.ts", false},
		{"main.go", "util.go", true},
		{"src/a.ts", "b.ts", false},
	}

	for _, tt := range tests {
		if got := SameDirectory(tt.a, tt.b); got != tt.want {
			t.Errorf("SameDirectory(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	terminal := []JobStatus{JobSucceeded, JobFailed, JobSkipped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobPending, JobRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{File: "src/a.ts", Line: 12, Message: "unused variable", Rule: "no-unused-vars"}
	want := "src/a.ts:12: unused variable (no-unused-vars)"
	if d.String() != want {
		t.Errorf("String() = %q, want %q", d.String(), want)
	}

	d.Rule = ""
	want = "src/a.ts:12: unused variable"
	if d.String() != want {
		t.Errorf("String() = %q, want %q", d.String(), want)
	}
}
