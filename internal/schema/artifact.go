// Package schema defines the canonical forensic data model for iris-triage.
// Every artifact handed to the scanner and every finding it produces is
// normalized to these structures before storage or publication.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies an artifact's content for coarse rule routing.
// Routing by category selects which rule families are evaluated; it is
// never a positive detection on its own.
type Category string

const (
	CategoryExecutable  Category = "executable"
	CategoryScript      Category = "script"
	CategoryVolumeImage Category = "volume_image"
	CategoryMemoryDump  Category = "memory_dump"
	CategoryOther       Category = "other"
)

// IsValid checks if the category is a valid value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryExecutable, CategoryScript, CategoryVolumeImage, CategoryMemoryDump, CategoryOther:
		return true
	}
	return false
}

// CategoryForPath derives a category from a file extension. Used only
// when the caller did not declare one.
func CategoryForPath(path string) Category {
	ext := lowerExt(path)
	switch ext {
	case ".exe", ".dll", ".sys", ".bin":
		return CategoryExecutable
	case ".ps1", ".bat", ".cmd", ".sh", ".vbs", ".js":
		return CategoryScript
	case ".vmdk", ".vhd", ".vhdx", ".img", ".dd", ".e01":
		return CategoryVolumeImage
	case ".dmp", ".mem", ".raw":
		return CategoryMemoryDump
	}
	return CategoryOther
}

func lowerExt(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i] {
		case '.':
			ext := make([]byte, 0, len(path)-i)
			for j := i; j < len(path); j++ {
				c := path[j]
				if c >= 'A' && c <= 'Z' {
					c += 'a' - 'A'
				}
				ext = append(ext, c)
			}
			return string(ext)
		case '/', '\\':
			return ""
		}
	}
	return ""
}

// Artifact is any forensic object that can be scanned: a file, a memory
// dump, a disk or volume image.
type Artifact struct {
	ID         uuid.UUID `json:"id" validate:"required"`
	Name       string    `json:"name" validate:"required,max=256"`
	Path       string    `json:"path" validate:"required,max=4096"`
	Category   Category  `json:"category" validate:"required,artifact_category"`
	Digest     string    `json:"digest,omitempty" validate:"max=128"`
	SizeBytes  int64     `json:"size_bytes,omitempty" validate:"omitempty,min=0"`
	CaseID     string    `json:"case_id,omitempty" validate:"max=64"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Finding records one rule matching one artifact at one point in time.
// Severity is copied from the rule at match time; later rule edits do not
// retroactively alter historical findings.
type Finding struct {
	ID         uuid.UUID `json:"id"`
	ScanID     uuid.UUID `json:"scan_id"`
	ArtifactID uuid.UUID `json:"artifact_id" validate:"required"`
	RuleID     string    `json:"rule_id" validate:"required,max=256"`
	RuleName   string    `json:"rule_name" validate:"required,max=256"`
	Severity   int       `json:"severity" validate:"required,min=1,max=5"`
	Tags       []string  `json:"tags,omitempty"`
	MatchedAt  time.Time `json:"matched_at" validate:"required"`
}

// Evidence is a case-level record of discovered proof, independent of any
// single artifact scan.
type Evidence struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name" validate:"required,max=256"`
	Description  string    `json:"description,omitempty" validate:"max=4096"`
	Source       string    `json:"source,omitempty" validate:"max=256"`
	Severity     int       `json:"severity" validate:"required,min=1,max=5"`
	DiscoveredAt time.Time `json:"discovered_at" validate:"required"`
}

// SchemaVersionCurrent is the current version of the forensic data schema.
const SchemaVersionCurrent = "1.0.0"
