// Package leads holds the inquiry form data a chat is seeded with and the client of the form
// submission API.
package leads

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// Lead is a prospective student as captured by the inquiry form.
type Lead struct {
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	CellPhone         string `json:"cellPhone"`
	HomePhone         string `json:"homePhone"`
	Headquarters      string `json:"headquarters"`
	ProgramType       string `json:"programType"`
	DataAuthorization bool   `json:"dataAuthorization"`
}

// FieldErrors maps form field names to user-facing validation messages.
type FieldErrors map[string]string

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var programTypeLabels = map[string]string{
	"undergraduate": "Undergraduate",
	"graduate":      "Graduate",
	"senior-high":   "Senior High School",
	"online":        "Fully Online",
}

var campusLabels = map[string]string{
	"manila": "Manila",
	"makati": "Makati",
	"laguna": "Laguna",
	"online": "Online",
}

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for _, field := range slices.Sorted(maps.Keys(f)) {
		parts = append(parts, fmt.Sprintf("%s: %s", field, f[field]))
	}
	return "invalid lead: " + strings.Join(parts, "; ")
}

// Validate checks the fields the inquiry form requires. It returns FieldErrors, or nil when the lead
// is complete.
func (l Lead) Validate() error {
	errs := FieldErrors{}

	if l.Headquarters == "" {
		errs["headquarters"] = "Please select a campus"
	}
	if l.ProgramType == "" {
		errs["programType"] = "Please select a program type"
	}
	if strings.TrimSpace(l.FirstName) == "" {
		errs["firstName"] = "First name is required"
	}
	if strings.TrimSpace(l.LastName) == "" {
		errs["lastName"] = "Last name is required"
	}
	switch {
	case strings.TrimSpace(l.Email) == "":
		errs["email"] = "Email is required"
	case !emailPattern.MatchString(l.Email):
		errs["email"] = "Please enter a valid email"
	}
	if strings.TrimSpace(l.CellPhone) == "" {
		errs["cellPhone"] = "Cell phone is required"
	}
	if !l.DataAuthorization {
		errs["dataAuthorization"] = "You must authorize data processing"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// CampusLabel returns the display name of the selected campus, or the raw value if it is unknown.
func (l Lead) CampusLabel() string {
	if label, ok := campusLabels[l.Headquarters]; ok {
		return label
	}
	return l.Headquarters
}

// ProgramLabel returns the display name of the selected program type, or the raw value if it is
// unknown.
func (l Lead) ProgramLabel() string {
	if label, ok := programTypeLabels[l.ProgramType]; ok {
		return label
	}
	return l.ProgramType
}

// SystemMessage is the hidden opening message that tells the agent who it is talking to.
func (l Lead) SystemMessage() string {
	var sb strings.Builder
	sb.WriteString("This is a system generated message. ")
	sb.WriteString("A new student has submitted an inquiry form with the following information:\n")
	fmt.Fprintf(&sb, "- Name: %s %s\n", l.FirstName, l.LastName)
	fmt.Fprintf(&sb, "- Email: %s\n", l.Email)
	fmt.Fprintf(&sb, "- Phone: %s\n", l.CellPhone)
	fmt.Fprintf(&sb, "- Campus Interest: %s\n", l.CampusLabel())
	fmt.Fprintf(&sb, "- Program Type: %s\n", l.ProgramLabel())
	sb.WriteString("- Data Authorization: Approved\n\n")
	sb.WriteString("Please start a friendly, personalized conversation with this student.")
	return sb.String()
}
