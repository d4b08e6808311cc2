package models

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mmdatafocus/glrecon_backend/store"
	"gopkg.in/yaml.v3"
)

// ValueSet is either an explicit list or ALL. Set is false when the key was
// absent from the YAML.
type ValueSet struct {
	All    bool
	Values []string
	Set    bool
}

func (v *ValueSet) UnmarshalYAML(node *yaml.Node) error {
	if err := v.decode(node); err != nil {
		return err
	}
	v.Set = true
	return nil
}

func (v *ValueSet) decode(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		s := strings.TrimSpace(node.Value)
		if strings.EqualFold(s, "ALL") || s == "*" {
			*v = ValueSet{All: true}
			return nil
		}
		if s == "" {
			*v = ValueSet{}
			return nil
		}
		*v = ValueSet{Values: []string{s}}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		out := ValueSet{}
		for _, it := range items {
			it = strings.TrimSpace(it)
			if strings.EqualFold(it, "ALL") {
				*v = ValueSet{All: true}
				return nil
			}
			if it != "" {
				out.Values = append(out.Values, it)
			}
		}
		*v = out
		return nil
	}
	return fmt.Errorf("line %d: expected ALL or a list", node.Line)
}

type Assignment struct {
	Role         Role     `yaml:"role"`
	Countries    ValueSet `yaml:"countries"`
	Streams      ValueSet `yaml:"streams"`
	PasswordHash string   `yaml:"passwordHash"`
}

type FallbackMode string

const (
	FallbackComplement FallbackMode = "complement"
	FallbackNone       FallbackMode = "none"
)

// AccessTable maps lowercased identities to their visibility.
type AccessTable struct {
	Fallback    FallbackMode          `yaml:"fallback"`
	Assignments map[string]Assignment `yaml:"assignments"`
}

func ParseAccessTable(data []byte) (*AccessTable, error) {
	var raw AccessTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse access table: %w", err)
	}
	t := &AccessTable{Fallback: raw.Fallback, Assignments: map[string]Assignment{}}
	switch FallbackMode(strings.ToLower(string(t.Fallback))) {
	case "", FallbackComplement:
		t.Fallback = FallbackComplement
	case FallbackNone:
		t.Fallback = FallbackNone
	default:
		return nil, fmt.Errorf("parse access table: unknown fallback %q", raw.Fallback)
	}
	for identity, a := range raw.Assignments {
		role, err := ParseRole(string(a.Role))
		if err != nil {
			return nil, fmt.Errorf("parse access table: %s: %w", identity, err)
		}
		a.Role = role
		if !a.Countries.Set {
			return nil, fmt.Errorf("parse access table: %s: countries is required (a list or ALL)", identity)
		}
		// An omitted streams key means every stream; an explicit [] means none.
		if !a.Streams.Set {
			a.Streams = ValueSet{All: true, Set: true}
		}
		t.Assignments[strings.ToLower(strings.TrimSpace(identity))] = a
	}
	return t, nil
}

func LoadAccessTable(path string) (*AccessTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read access table: %w", err)
	}
	return ParseAccessTable(data)
}

func (t *AccessTable) Lookup(identity string) (Assignment, bool) {
	if t == nil {
		return Assignment{}, false
	}
	a, ok := t.Assignments[strings.ToLower(strings.TrimSpace(identity))]
	return a, ok
}

// AssignedCountries lists every country named by an explicit assignment.
// ALL assignments do not claim countries.
func (t *AccessTable) AssignedCountries() []string {
	seen := map[string]string{}
	for _, a := range t.Assignments {
		if a.Countries.All {
			continue
		}
		for _, c := range a.Countries.Values {
			seen[strings.ToLower(c)] = c
		}
	}
	out := make([]string, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ScopeFor resolves what identity may see. Unknown identities get the
// fallback scope.
func (t *AccessTable) ScopeFor(identity string) AccessScope {
	if a, ok := t.Lookup(identity); ok {
		return AccessScope{
			AllCountries: a.Countries.All,
			Countries:    a.Countries.Values,
			AllStreams:   a.Streams.All,
			Streams:      a.Streams.Values,
		}
	}
	if t == nil || t.Fallback == FallbackNone {
		return AccessScope{None: true}
	}
	return AccessScope{AllCountries: true, ExcludeCountries: t.AssignedCountries(), AllStreams: true}
}

func (t *AccessTable) RoleFor(identity string) Role {
	if a, ok := t.Lookup(identity); ok {
		return a.Role
	}
	return RoleFiller
}

type AccessScope struct {
	AllCountries     bool     `json:"allCountries"`
	Countries        []string `json:"countries,omitempty"`
	ExcludeCountries []string `json:"excludeCountries,omitempty"`
	AllStreams       bool     `json:"allStreams"`
	Streams          []string `json:"streams,omitempty"`
	None             bool     `json:"none,omitempty"`
}

// Filter is the store predicate for the scope.
func (s AccessScope) Filter() store.Filter {
	f := store.Filter{}
	if s.None {
		return store.Filter{MatchNone: true}
	}
	if !s.AllCountries {
		f = f.In("country", s.Countries...)
	}
	if len(s.ExcludeCountries) > 0 {
		f = f.NotIn("country", s.ExcludeCountries...)
	}
	if !s.AllStreams {
		f = f.In("stream", s.Streams...)
	}
	return f
}

func (s AccessScope) Allows(r ReconciliationRecord) bool {
	return s.Filter().Matches(store.Document{"country": r.Country, "stream": r.Stream})
}

// Actor is the authenticated caller of a workflow.
type Actor struct {
	Username string
	Role     Role
	Scope    AccessScope
}

// SystemActor is used by the scheduler and CLI tools.
func SystemActor(name string) Actor {
	return Actor{Username: name, Role: RoleAdmin, Scope: AccessScope{AllCountries: true, AllStreams: true}}
}
