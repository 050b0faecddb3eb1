package core

import "testing"

func TestQualityRankOrdering(t *testing.T) {
	tiers := []Quality{QualityHeuristic, QualityPartial, QualityPathMatch, QualityExact}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].Rank() <= tiers[i-1].Rank() {
			t.Errorf("Rank(%s) = %d, want > Rank(%s) = %d",
				tiers[i], tiers[i].Rank(), tiers[i-1], tiers[i-1].Rank())
		}
	}
	if Quality("bogus").Rank() != 0 {
		t.Errorf("unknown quality should rank 0, got %d", Quality("bogus").Rank())
	}
}

func TestCandidateReason(t *testing.T) {
	tests := []struct {
		name     string
		missing  []string
		expected string
		valid    bool
	}{
		{
			name:     "all present",
			missing:  nil,
			expected: "",
			valid:    true,
		},
		{
			name:     "one missing",
			missing:  []string{"Siemens.Engineering.AddIn.dll"},
			expected: "Missing: Siemens.Engineering.AddIn.dll",
			valid:    false,
		},
		{
			name:     "two missing keeps declaration order",
			missing:  []string{"Siemens.Engineering.Hmi.dll", "Siemens.Engineering.AddIn.dll"},
			expected: "Missing: Siemens.Engineering.Hmi.dll, Siemens.Engineering.AddIn.dll",
			valid:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Candidate{Folder: "/x", Missing: tt.missing}
			if c.IsValid() != tt.valid {
				t.Errorf("IsValid() = %v, want %v", c.IsValid(), tt.valid)
			}
			if got := c.Reason(); got != tt.expected {
				t.Errorf("Reason() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPathKey(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"backslashes and case", `C:\Program Files\Siemens`, "c:/program files/siemens"},
		{"trailing slash stripped", "/opt/siemens/", "/opt/siemens"},
		{"root survives", "/", "/"},
		{"mixed separators", `C:/Portal V17\PublicAPI`, "c:/portal v17/publicapi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PathKey(tt.in); got != tt.expected {
				t.Errorf("PathKey(%q) = %q, want %q", tt.in, got, tt.expected)
			}
		})
	}
}

func TestManifestHasKeyword(t *testing.T) {
	m := TIAPortalV17()

	if !m.HasKeyword(`D:\Apps\TIA Portal`) {
		t.Error("expected keyword hit on 'TIA Portal'")
	}
	if !m.HasKeyword("/mnt/c/Portal V17/PublicAPI") {
		t.Error("expected keyword hit on version marker segment")
	}
	if m.HasKeyword(`C:\Users\bob\Pictures`) {
		t.Error("unexpected keyword hit on unrelated path")
	}
	if m.Primary() != "Siemens.Engineering.dll" {
		t.Errorf("Primary() = %q", m.Primary())
	}
}
