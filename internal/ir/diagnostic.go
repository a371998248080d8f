package ir

import "fmt"

// DiagnosticLevel is the severity of a Diagnostic.
type DiagnosticLevel string

const (
	// LevelError blocks compilation.
	LevelError DiagnosticLevel = "error"

	// LevelWarn is surfaced but never blocks compilation.
	LevelWarn DiagnosticLevel = "warn"
)

// DiagnosticCode is the stable identifier of a validation finding.
type DiagnosticCode string

const (
	// CodeSchemaViolation is a structural (schema) error.
	CodeSchemaViolation DiagnosticCode = "SCHEMA_VIOLATION"

	// CodeDuplicateDomainKey indicates two domains share a key.
	CodeDuplicateDomainKey DiagnosticCode = "DUPLICATE_DOMAIN_KEY"

	// CodeDuplicateEntityName indicates two entities in one domain share a name.
	CodeDuplicateEntityName DiagnosticCode = "DUPLICATE_ENTITY_NAME"

	// CodePrimaryKeyFieldMissing indicates primaryKey names no field of the entity.
	CodePrimaryKeyFieldMissing DiagnosticCode = "PRIMARY_KEY_FIELD_MISSING"

	// CodePrimaryKeyNotMarked indicates the primary-key field lacks primary:true.
	CodePrimaryKeyNotMarked DiagnosticCode = "PRIMARY_KEY_NOT_MARKED"

	// CodePrimaryKeyConflict indicates a field other than primaryKey has primary:true.
	CodePrimaryKeyConflict DiagnosticCode = "PRIMARY_KEY_CONFLICT"

	// CodeDuplicateFieldName indicates two fields in one entity share a name.
	CodeDuplicateFieldName DiagnosticCode = "DUPLICATE_FIELD_NAME"

	// CodeUnknownServiceEntity indicates a service references a missing entity.
	CodeUnknownServiceEntity DiagnosticCode = "UNKNOWN_SERVICE_ENTITY"

	// CodeRouteCollision indicates a custom operation shadows a CRUD route.
	CodeRouteCollision DiagnosticCode = "ROUTE_COLLISION"

	// CodePublicWriteOperation flags a public operation with a non-GET method.
	CodePublicWriteOperation DiagnosticCode = "PUBLIC_WRITE_OPERATION"

	// CodeScopePrefixMismatch indicates a scope not prefixed with "<domainKey>:".
	CodeScopePrefixMismatch DiagnosticCode = "SCOPE_PREFIX_MISMATCH"
)

// Diagnostic is a leveled, coded, JSON-Pointer-addressed validation finding.
// Diagnostics are values: validators append them and never mutate them.
type Diagnostic struct {
	Code       DiagnosticCode  `json:"code"`
	Level      DiagnosticLevel `json:"level"`
	Path       string          `json:"path"`
	Message    string          `json:"message"`
	Suggestion string          `json:"suggestion,omitempty"`
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	if d.Suggestion != "" {
		return fmt.Sprintf("[%s] %s %s: %s (%s)", d.Level, d.Code, d.Path, d.Message, d.Suggestion)
	}
	return fmt.Sprintf("[%s] %s %s: %s", d.Level, d.Code, d.Path, d.Message)
}

// HasErrors reports whether any diagnostic is error level.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}

// CountByLevel returns the number of errors and warnings in diags.
func CountByLevel(diags []Diagnostic) (errs, warns int) {
	for _, d := range diags {
		switch d.Level {
		case LevelError:
			errs++
		case LevelWarn:
			warns++
		}
	}
	return errs, warns
}
