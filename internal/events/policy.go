package events

// SearchIcon is the icon the agent prefixes knowledge-base lookups with.
const SearchIcon = "🔍"

// DefaultIcon is used when a thinking line carries no leading icon.
const DefaultIcon = "💡"

// IconRule decides how a tool status carrying a given icon is presented. An empty Label keeps the
// message sent by the agent.
type IconRule struct {
	Label string
}

// IconPolicy maps icons to presentation rules. Tool statuses whose icon has no entry are suppressed,
// so making a new icon visible is a data change.
type IconPolicy map[string]IconRule

// DefaultIconPolicy only surfaces searches, relabelled with a fixed localized label.
var DefaultIconPolicy = IconPolicy{
	SearchIcon: {Label: "Searching"},
}

// resolve returns the message to display for icon and whether the status is visible at all.
func (p IconPolicy) resolve(icon, message string) (string, bool) {
	rule, ok := p[icon]
	if !ok {
		return "", false
	}
	if rule.Label != "" {
		return rule.Label, true
	}
	return message, true
}
