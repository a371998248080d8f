package pack

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/specerr"
)

// Engine validates answers against a pack and merges them into a session.
// It holds no state and is safe for concurrent use.
type Engine struct{}

// NewEngine returns a question engine.
func NewEngine() *Engine {
	return &Engine{}
}

// ValidateAndApply coerces every value in set to its question's type,
// checks the question's rules, and returns a copy of s with the answers
// merged. A null value clears an answer. Any unknown key or rejected value
// fails the whole set with ANSWER_VALIDATION_FAILED and s is left alone.
func (e *Engine) ValidateAndApply(s *ir.SpecSession, p *Pack, set ir.IRObject) (*ir.SpecSession, error) {
	next := s.Clone()
	if next.Answers == nil {
		next.Answers = ir.IRObject{}
	}

	var problems []string
	for _, key := range set.SortedKeys() {
		raw := set[key]
		q, ok := p.Question(key)
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown question %q", key))
			continue
		}
		if _, isNull := raw.(ir.IRNull); isNull || raw == nil {
			delete(next.Answers, key)
			continue
		}
		value, err := coerce(q, raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		next.Answers[key] = value
	}

	if len(problems) > 0 {
		return nil, specerr.Newf(specerr.AnswerValidationFailed, "%s", strings.Join(problems, "; "))
	}
	return next, nil
}

// IsComplete reports whether every required question has an answer.
func (e *Engine) IsComplete(s *ir.SpecSession, p *Pack) bool {
	return len(e.MissingRequired(s, p)) == 0
}

// MissingRequired lists unanswered required keys in pack order.
func (e *Engine) MissingRequired(s *ir.SpecSession, p *Pack) []string {
	var missing []string
	for _, q := range p.Questions {
		if _, ok := s.Answers[q.Key]; q.Required && !ok {
			missing = append(missing, q.Key)
		}
	}
	return missing
}

// OpenQuestions lists every unanswered key in pack order.
func (e *Engine) OpenQuestions(s *ir.SpecSession, p *Pack) []string {
	open := []string{}
	for _, q := range p.Questions {
		if _, ok := s.Answers[q.Key]; !ok {
			open = append(open, q.Key)
		}
	}
	return open
}

func coerce(q Question, raw ir.IRValue) (ir.IRValue, error) {
	switch q.Type {
	case TypeString:
		s, ok := raw.(ir.IRString)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %s", ir.TypeName(raw))
		}
		return s, checkString(q, string(s))
	case TypeInt:
		n, err := coerceInt(raw)
		if err != nil {
			return nil, err
		}
		return ir.IRInt(n), checkBounds(q, n, "gte", "lte")
	case TypeBool:
		return coerceBool(raw)
	case TypeEnum:
		s, ok := raw.(ir.IRString)
		if !ok {
			return nil, fmt.Errorf("expected one of %v, got %s", q.Options, ir.TypeName(raw))
		}
		if !slices.Contains(q.Options, string(s)) {
			return nil, fmt.Errorf("%q is not one of %v", string(s), q.Options)
		}
		return s, nil
	case TypeList:
		items, err := coerceList(raw)
		if err != nil {
			return nil, err
		}
		if err := checkBounds(q, items, "min", "max"); err != nil {
			return nil, err
		}
		out := make(ir.IRArray, len(items))
		for i, item := range items {
			out[i] = ir.IRString(item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("question type %q is not supported", q.Type)
	}
}

func checkString(q Question, s string) error {
	if err := checkBounds(q, s, "min", "max"); err != nil {
		return err
	}
	if q.Pattern != "" {
		re, err := regexp.Compile(q.Pattern)
		if err != nil {
			return fmt.Errorf("pattern %q does not compile: %w", q.Pattern, err)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("%q does not match %s", s, q.Pattern)
		}
	}
	return nil
}

// checkBounds applies the question's min/max through validator tags:
// lowTag/highTag are "min"/"max" for lengths and "gte"/"lte" for numbers.
func checkBounds(q Question, v any, lowTag, highTag string) error {
	var tags []string
	if q.Min != nil {
		tags = append(tags, fmt.Sprintf("%s=%d", lowTag, *q.Min))
	}
	if q.Max != nil {
		tags = append(tags, fmt.Sprintf("%s=%d", highTag, *q.Max))
	}
	if len(tags) == 0 {
		return nil
	}
	if err := packValidate.Var(v, strings.Join(tags, ",")); err != nil {
		return fmt.Errorf("value out of bounds (%s)", boundsText(q))
	}
	return nil
}

func boundsText(q Question) string {
	var parts []string
	if q.Min != nil {
		parts = append(parts, "min "+strconv.FormatInt(*q.Min, 10))
	}
	if q.Max != nil {
		parts = append(parts, "max "+strconv.FormatInt(*q.Max, 10))
	}
	return strings.Join(parts, ", ")
}

func coerceInt(raw ir.IRValue) (int64, error) {
	switch v := raw.(type) {
	case ir.IRInt:
		return int64(v), nil
	case ir.IRFloat:
		if float64(v) == float64(int64(v)) {
			return int64(v), nil
		}
		return 0, fmt.Errorf("expected an integer, got %v", float64(v))
	case ir.IRString:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", string(v))
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected an integer, got %s", ir.TypeName(raw))
	}
}

func coerceBool(raw ir.IRValue) (ir.IRValue, error) {
	switch v := raw.(type) {
	case ir.IRBool:
		return v, nil
	case ir.IRString:
		switch strings.ToLower(strings.TrimSpace(string(v))) {
		case "true", "yes", "y":
			return ir.IRBool(true), nil
		case "false", "no", "n":
			return ir.IRBool(false), nil
		}
		return nil, fmt.Errorf("expected a boolean, got %q", string(v))
	default:
		return nil, fmt.Errorf("expected a boolean, got %s", ir.TypeName(raw))
	}
}

// coerceList accepts an array of strings or a comma-separated string.
func coerceList(raw ir.IRValue) ([]string, error) {
	var items []string
	switch v := raw.(type) {
	case ir.IRArray:
		for i, elem := range v {
			s, ok := elem.(ir.IRString)
			if !ok {
				return nil, fmt.Errorf("item %d: expected a string, got %s", i, ir.TypeName(elem))
			}
			items = append(items, strings.TrimSpace(string(s)))
		}
	case ir.IRString:
		for _, part := range strings.Split(string(v), ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	default:
		return nil, fmt.Errorf("expected a list, got %s", ir.TypeName(raw))
	}
	if items == nil {
		items = []string{}
	}
	for i, item := range items {
		if item == "" {
			return nil, fmt.Errorf("item %d is empty", i)
		}
	}
	return items, nil
}
