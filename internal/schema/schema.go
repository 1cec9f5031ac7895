// Package schema enumerates the entity types persisted by the workspace
// (organizations, teams, OKRs, requests and tasks).
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSchema is returned by Parse when an identifier is not a member of All.
var ErrUnknownSchema = errors.New("unknown schema")

// Name identifies a persisted entity type.
type Name string

// Known entity types.
const (
	Organization Name = "Organization"
	Team         Name = "Team"
	Member       Name = "Member"
	User         Name = "User"
	Objective    Name = "Objective"
	KeyResult    Name = "KeyResult"
	Request      Name = "Request"
	Task         Name = "Task"
	Category     Name = "Category"
	Comment      Name = "Comment"
	Attachment   Name = "Attachment"
	Activity     Name = "Activity"
)

// All lists every known schema in registration order.
var All = []Name{
	Organization,
	Team,
	Member,
	User,
	Objective,
	KeyResult,
	Request,
	Task,
	Category,
	Comment,
	Attachment,
	Activity,
}

// Section is the workspace area an entity type belongs to.
type Section string

const (
	SectionWorkspace Section = "workspace"
	SectionOKR       Section = "okr"
	SectionRequests  Section = "requests"
	SectionTasks     Section = "tasks"
)

var sections = map[Name]Section{
	Organization: SectionWorkspace,
	Team:         SectionWorkspace,
	Member:       SectionWorkspace,
	User:         SectionWorkspace,
	Objective:    SectionOKR,
	KeyResult:    SectionOKR,
	Request:      SectionRequests,
	Task:         SectionTasks,
	Category:     SectionTasks,
	Comment:      SectionTasks,
	Attachment:   SectionTasks,
	Activity:     SectionWorkspace,
}

// byLower indexes All by lowercased identifier for Parse.
var byLower = func() map[string]Name {
	m := make(map[string]Name, len(All))
	for _, n := range All {
		m[strings.ToLower(string(n))] = n
	}
	return m
}()

// String returns the identifier.
func (n Name) String() string {
	return string(n)
}

// Valid reports whether n is a member of All.
func (n Name) Valid() bool {
	_, ok := sections[n]
	return ok
}

// Section returns the workspace section of n, or "" for unknown names.
func (n Name) Section() Section {
	return sections[n]
}

// Parse maps an identifier to a known schema, ignoring case and surrounding whitespace.
// Example: "keyresult" -> KeyResult
func Parse(raw string) (Name, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrUnknownSchema)
	}
	if n, ok := byLower[key]; ok {
		return n, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSchema, raw)
}

// InSection returns the schemas of a section in registration order.
func InSection(section Section) []Name {
	var out []Name
	for _, n := range All {
		if sections[n] == section {
			out = append(out, n)
		}
	}
	return out
}
