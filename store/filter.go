package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Op string

const (
	OpIn    Op = "in"
	OpNotIn Op = "not_in"
)

// Condition compares a top-level document field against a set of values.
// Matching is case-insensitive on the string form of the field.
type Condition struct {
	Field  string
	Op     Op
	Values []string
}

// Filter is a conjunction of conditions. The zero value matches everything.
type Filter struct {
	Conditions []Condition
	// MatchNone short-circuits the filter to an empty result.
	MatchNone bool
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (f Filter) In(field string, values ...string) Filter {
	return f.with(Condition{Field: field, Op: OpIn, Values: values})
}

func (f Filter) NotIn(field string, values ...string) Filter {
	return f.with(Condition{Field: field, Op: OpNotIn, Values: values})
}

func (f Filter) with(c Condition) Filter {
	conds := make([]Condition, 0, len(f.Conditions)+1)
	conds = append(conds, f.Conditions...)
	conds = append(conds, c)
	return Filter{Conditions: conds, MatchNone: f.MatchNone}
}

// Empty reports whether the filter can be answered without a query.
// An IN with no values matches nothing.
func (f Filter) Empty() bool {
	if f.MatchNone {
		return true
	}
	for _, c := range f.Conditions {
		if c.Op == OpIn && len(c.Values) == 0 {
			return true
		}
	}
	return false
}

func (f Filter) Validate() error {
	for _, c := range f.Conditions {
		if !fieldNamePattern.MatchString(c.Field) {
			return fmt.Errorf("invalid filter field %q", c.Field)
		}
		if c.Op != OpIn && c.Op != OpNotIn {
			return fmt.Errorf("invalid filter op %q", c.Op)
		}
	}
	return nil
}

func (f Filter) Matches(doc Document) bool {
	if f.Empty() {
		return false
	}
	for _, c := range f.Conditions {
		v := strings.ToLower(ValueString(doc[c.Field]))
		found := false
		for _, want := range c.Values {
			if strings.ToLower(want) == v {
				found = true
				break
			}
		}
		if c.Op == OpIn && !found {
			return false
		}
		if c.Op == OpNotIn && found {
			return false
		}
	}
	return true
}

// ValueString renders a JSON-native value the way filters compare it.
func ValueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
