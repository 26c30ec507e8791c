package instrumentation

import (
	"strings"
	"testing"
)

func TestNormalizeOperation(t *testing.T) {
	tests := []struct {
		op   string
		want string
	}{
		{OperationList, "list"},
		{OperationQuickAdd, "quick_add"},
		{OperationFreeBusy, "freebusy"},
		{"send", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			if got := NormalizeOperation(tt.op); got != tt.want {
				t.Errorf("NormalizeOperation(%q) = %q, want %q", tt.op, got, tt.want)
			}
		})
	}
}

func TestAnonymizeSession(t *testing.T) {
	if got := AnonymizeSession(""); got != "unknown" {
		t.Errorf("AnonymizeSession(\"\") = %q", got)
	}

	a := AnonymizeSession("call-42")
	if a != AnonymizeSession("call-42") {
		t.Error("fingerprint should be stable")
	}
	if a == AnonymizeSession("call-43") {
		t.Error("different sessions should have different fingerprints")
	}
	if !strings.HasPrefix(a, "s:") || len(a) != 10 {
		t.Errorf("unexpected fingerprint %q", a)
	}
}
