package schema

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidateRuleName(t *testing.T) {
	tests := []struct {
		name     string
		ruleName string
		want     bool
	}{
		{"simple name", "LockBit", true},
		{"with underscore", "LockBit_Ransomware", true},
		{"with numbers", "Emotet2024", true},
		{"lowercase", "persistence_registry", true},
		{"leading underscore", "_rule", false},
		{"starts with number", "3proxy", false},
		{"space invalid", "LockBit Ransomware", false},
		{"hyphen invalid", "lockbit-ransomware", false},
		{"empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateRuleName(tt.ruleName); got != tt.want {
				t.Errorf("ValidateRuleName(%q) = %v, want %v", tt.ruleName, got, tt.want)
			}
		})
	}
}

func TestValidator_ValidateArtifact(t *testing.T) {
	validator := NewValidator()
	now := time.Now().UTC()

	validArtifact := func() *Artifact {
		return &Artifact{
			ID:         uuid.New(),
			Name:       "suspicious.exe",
			Path:       "/evidence/case-7/suspicious.exe",
			Category:   CategoryExecutable,
			CreatedAt:  now.Add(-time.Hour),
			ModifiedAt: now,
		}
	}

	t.Run("valid artifact", func(t *testing.T) {
		if err := validator.ValidateArtifact(validArtifact()); err != nil {
			t.Errorf("ValidateArtifact() error = %v, want nil", err)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		a := validArtifact()
		a.Path = ""
		if err := validator.ValidateArtifact(a); err == nil {
			t.Error("ValidateArtifact() should fail for missing path")
		}
	})

	t.Run("invalid category", func(t *testing.T) {
		a := validArtifact()
		a.Category = Category("floppy")
		if err := validator.ValidateArtifact(a); err == nil {
			t.Error("ValidateArtifact() should fail for unknown category")
		}
	})
}

func TestValidator_ValidateFinding(t *testing.T) {
	validator := NewValidator()

	validFinding := func() *Finding {
		return &Finding{
			ID:         uuid.New(),
			ScanID:     uuid.New(),
			ArtifactID: uuid.New(),
			RuleID:     "lockbit_ransomware",
			RuleName:   "LockBit_Ransomware",
			Severity:   5,
			MatchedAt:  time.Now().UTC(),
		}
	}

	t.Run("valid finding", func(t *testing.T) {
		if err := validator.ValidateFinding(validFinding()); err != nil {
			t.Errorf("ValidateFinding() error = %v, want nil", err)
		}
	})

	t.Run("severity zero", func(t *testing.T) {
		f := validFinding()
		f.Severity = 0
		if err := validator.ValidateFinding(f); err == nil {
			t.Error("ValidateFinding() should fail for severity 0")
		}
	})

	t.Run("severity above five", func(t *testing.T) {
		f := validFinding()
		f.Severity = 6
		if err := validator.ValidateFinding(f); err == nil {
			t.Error("ValidateFinding() should fail for severity 6")
		}
	})
}

func TestCategoryForPath(t *testing.T) {
	tests := []struct {
		path string
		want Category
	}{
		{"/dump/malware.exe", CategoryExecutable},
		{"C:\\Windows\\System32\\evil.DLL", CategoryExecutable},
		{"/tmp/persist.ps1", CategoryScript},
		{"/images/disk01.vmdk", CategoryVolumeImage},
		{"/images/host.E01", CategoryVolumeImage},
		{"/mem/lsass.dmp", CategoryMemoryDump},
		{"/docs/readme.txt", CategoryOther},
		{"/docs/noext", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := CategoryForPath(tt.path); got != tt.want {
				t.Errorf("CategoryForPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
