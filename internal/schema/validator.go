package schema

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// ruleNamePattern defines the valid shape for rule names. Rule names must
// start with a letter and use only identifier characters, matching the
// identifier grammar of the rule document language.
// Examples: "LockBit_Ransomware", "Persistence_Registry"
var ruleNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Validator validates artifacts, findings, and evidence against the
// canonical schema.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	v := validator.New()

	// Register custom validation for artifact categories
	v.RegisterValidation("artifact_category", func(fl validator.FieldLevel) bool {
		return Category(fl.Field().String()).IsValid()
	})

	return &Validator{validate: v}
}

// ValidateArtifact validates an artifact reference before it is handed to
// the match engine.
func (v *Validator) ValidateArtifact(a *Artifact) error {
	if err := v.validate.Struct(a); err != nil {
		return fmt.Errorf("artifact validation failed: %w", err)
	}
	return nil
}

// ValidateFinding validates a finding before storage or publication.
// Severity outside 1..5 is rejected here rather than silently clamped.
func (v *Validator) ValidateFinding(f *Finding) error {
	if err := v.validate.Struct(f); err != nil {
		return fmt.Errorf("finding validation failed: %w", err)
	}
	return nil
}

// ValidateEvidence validates a case-level evidence record.
func (v *Validator) ValidateEvidence(e *Evidence) error {
	if err := v.validate.Struct(e); err != nil {
		return fmt.Errorf("evidence validation failed: %w", err)
	}
	return nil
}

// ValidateRuleName checks if a rule name matches the required identifier
// shape.
func ValidateRuleName(name string) bool {
	return ruleNamePattern.MatchString(name)
}
