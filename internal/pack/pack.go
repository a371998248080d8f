// Package pack loads template question packs and validates answers
// against them.
//
// A pack is a YAML file named after its template id:
//
//	id: crud-backend
//	title: CRUD backend service
//	questions:
//	  - key: projectName
//	    prompt: What is the project called?
//	    type: string
//	    required: true
//
// Packs ship embedded in the binary and may be overridden or extended from
// a directory (see Loader).
package pack

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// QuestionType is the declared type of an answer.
type QuestionType string

const (
	TypeString QuestionType = "string"
	TypeInt    QuestionType = "int"
	TypeBool   QuestionType = "bool"
	TypeEnum   QuestionType = "enum"
	TypeList   QuestionType = "list"
)

var (
	templateIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)
	answerKeyRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// packValidate is shared by the loader and the question engine.
var packValidate *validator.Validate

func init() {
	packValidate = validator.New()
	mustRegister("templateid", func(fl validator.FieldLevel) bool {
		return templateIDRe.MatchString(fl.Field().String())
	})
	mustRegister("answerkey", func(fl validator.FieldLevel) bool {
		return answerKeyRe.MatchString(fl.Field().String())
	})
	mustRegister("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := packValidate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("pack: register validation %q: %v", tag, err))
	}
}

// ValidTemplateID reports whether id is a well-formed template id.
func ValidTemplateID(id string) bool {
	return templateIDRe.MatchString(id)
}

// Pack is a template's question set plus drafting guidance.
type Pack struct {
	ID          string     `yaml:"id" json:"id" validate:"required,templateid"`
	Title       string     `yaml:"title" json:"title" validate:"required"`
	Description string     `yaml:"description" json:"description,omitempty"`
	Guidance    string     `yaml:"guidance" json:"guidance,omitempty"`
	Questions   []Question `yaml:"questions" json:"questions" validate:"required,min=1,dive"`
}

// Question is one answerable key. Min and Max bound string length, int
// value, or list size depending on Type.
type Question struct {
	Key      string       `yaml:"key" json:"key" validate:"required,answerkey"`
	Prompt   string       `yaml:"prompt" json:"prompt" validate:"required"`
	Type     QuestionType `yaml:"type" json:"type" validate:"required,oneof=string int bool enum list"`
	Required bool         `yaml:"required" json:"required"`
	Options  []string     `yaml:"options" json:"options,omitempty" validate:"required_if=Type enum,dive,required"`
	Min      *int64       `yaml:"min" json:"min,omitempty"`
	Max      *int64       `yaml:"max" json:"max,omitempty"`
	Pattern  string       `yaml:"pattern" json:"pattern,omitempty" validate:"omitempty,regexp"`
}

// Question returns the question with key, if any.
func (p *Pack) Question(key string) (Question, bool) {
	for _, q := range p.Questions {
		if q.Key == key {
			return q, true
		}
	}
	return Question{}, false
}

// Validate checks the pack's struct rules, that question keys are unique,
// and that bounds are ordered.
func (p *Pack) Validate() error {
	if err := packValidate.Struct(p); err != nil {
		return err
	}
	seen := make(map[string]bool, len(p.Questions))
	for _, q := range p.Questions {
		if seen[q.Key] {
			return fmt.Errorf("duplicate question key %q", q.Key)
		}
		seen[q.Key] = true
		if q.Min != nil && q.Max != nil && *q.Max < *q.Min {
			return fmt.Errorf("question %q: max %d is below min %d", q.Key, *q.Max, *q.Min)
		}
	}
	return nil
}
