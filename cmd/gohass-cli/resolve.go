package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joshp123/gohass/internal/core"
)

// candidate is one name a user may type for an id.
type candidate struct {
	label string
	id    string
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

// resolveEntityID accepts an entity id or a friendly name, so
// "Living Room" finds climate.living_room.
func resolveEntityID(input string, states []core.State) (string, error) {
	options := make([]candidate, 0, len(states)*2)
	for _, s := range states {
		if s.EntityID == input {
			return s.EntityID, nil
		}
		options = append(options, candidate{label: s.EntityID, id: s.EntityID}, candidate{label: s.Name, id: s.EntityID})
	}
	return resolveNamed("entity", input, options)
}

func resolveNamedID(kind, input string, options map[string]string) (string, error) {
	candidates := make([]candidate, 0, len(options))
	for label, id := range options {
		candidates = append(candidates, candidate{label: label, id: id})
	}
	return resolveNamed(kind, input, candidates)
}

func resolveNamed(kind, input string, options []candidate) (string, error) {
	needle := normalizeName(input)
	matched := map[string]bool{}
	var ids []string
	for _, c := range options {
		if normalizeName(c.label) == needle && !matched[c.id] {
			matched[c.id] = true
			ids = append(ids, c.id)
		}
	}
	sort.Strings(ids)
	switch len(ids) {
	case 1:
		return ids[0], nil
	case 0:
	default:
		return "", fmt.Errorf("%s %q is ambiguous: %s", kind, input, strings.Join(ids, ", "))
	}

	seen := map[string]bool{}
	available := make([]string, 0, len(options))
	for _, c := range options {
		if !seen[c.id] {
			seen[c.id] = true
			available = append(available, c.id)
		}
	}
	sort.Strings(available)
	return "", fmt.Errorf("%s %q not found. Available: %s", kind, input, strings.Join(available, ", "))
}
