package core

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// CustomRule evaluates a custom validation rule against a coerced value.
// Returning false fails the rule; a non-empty message replaces the default one.
type CustomRule func(value any, rule ValidationRule) (ok bool, message string)

// builtinRules are available to every validator under these names.
var builtinRules = map[string]CustomRule{
	"oneOf":        oneOfRule,
	"prefix":       prefixRule,
	"noWhitespace": noWhitespaceRule,
}

// oneOfRule passes when the value's text equals one of params.values,
// ignoring case unless params.caseSensitive is true.
func oneOfRule(value any, rule ValidationRule) (bool, string) {
	allowed, _ := rule.Params["values"].([]any)
	caseSensitive, _ := rule.Params["caseSensitive"].(bool)
	s := ToText(value)
	for _, a := range allowed {
		as := ToText(a)
		if s == as || (!caseSensitive && strings.EqualFold(s, as)) {
			return true, ""
		}
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = ToText(a)
	}
	return false, fmt.Sprintf("must be one of: %s", strings.Join(names, ", "))
}

func prefixRule(value any, rule ValidationRule) (bool, string) {
	prefix, _ := rule.Params["value"].(string)
	if strings.HasPrefix(ToText(value), prefix) {
		return true, ""
	}
	return false, fmt.Sprintf("must start with %q", prefix)
}

func noWhitespaceRule(value any, _ ValidationRule) (bool, string) {
	if strings.ContainsAny(ToText(value), " \t\r\n") {
		return false, "must not contain whitespace"
	}
	return true, ""
}

// ruleChecker evaluates the non-custom rule types. Compiled patterns are
// cached per validation run.
type ruleChecker struct {
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
	badExpr  map[string]error
}

func newRuleChecker() *ruleChecker {
	return &ruleChecker{
		patterns: make(map[string]*regexp.Regexp),
		badExpr:  make(map[string]error),
	}
}

func (rc *ruleChecker) pattern(expr string) (*regexp.Regexp, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if re, ok := rc.patterns[expr]; ok {
		return re, nil
	}
	if err, ok := rc.badExpr[expr]; ok {
		return nil, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		rc.badExpr[expr] = err
		return nil, err
	}
	rc.patterns[expr] = re
	return re, nil
}

// measure returns the number compared by min and max: the value itself for
// numbers, the character count for text and the length of lists.
func measure(v any) (float64, string, bool) {
	switch t := v.(type) {
	case float64:
		return t, "", true
	case string:
		return float64(utf8.RuneCountInString(t)), " characters", true
	case []any:
		return float64(len(t)), " items", true
	}
	return 0, "", false
}

// check evaluates one built-in rule and returns the failure message, or ""
// when the value passes.
func (rc *ruleChecker) check(v any, rule ValidationRule) string {
	switch rule.Type {
	case RuleMin, RuleMax:
		bound, err := ToNumber(rule.Value)
		if err != nil {
			return fmt.Sprintf("invalid %s rule bound %v", rule.Type, rule.Value)
		}
		m, unit, ok := measure(v)
		if !ok {
			return ""
		}
		if rule.Type == RuleMin && m < bound {
			return fmt.Sprintf("must be at least %s%s", ToText(bound), unit)
		}
		if rule.Type == RuleMax && m > bound {
			return fmt.Sprintf("must be at most %s%s", ToText(bound), unit)
		}
	case RulePattern:
		expr, _ := rule.Value.(string)
		re, err := rc.pattern(expr)
		if err != nil {
			return fmt.Sprintf("invalid pattern rule %q", expr)
		}
		if !re.MatchString(ToText(v)) {
			return fmt.Sprintf("does not match pattern %s", expr)
		}
	case RuleEmail:
		if err := fieldValidator.Var(ToText(v), "email"); err != nil {
			return "invalid email address"
		}
	case RuleURL:
		if err := fieldValidator.Var(ToText(v), "url"); err != nil {
			return "invalid url"
		}
	default:
		return fmt.Sprintf("unknown rule type %q", rule.Type)
	}
	return ""
}
