package prompt

import (
	_ "embed"
	"strings"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

var (
	//go:embed template/concierge.txt
	conciergeRaw string

	//go:embed template/staff.txt
	staffRaw string
)

// PromptSet holds the system prompt parts. Concierge is an FString template
// over {name}, {role} and {today}.
type PromptSet struct {
	Concierge string
	Staff     string
}

func LoadPromptSet() PromptSet {
	return PromptSet{
		Concierge: strings.TrimSpace(conciergeRaw),
		Staff:     strings.TrimSpace(staffRaw),
	}
}

// SystemFor returns the system template for role; staff get the addendum.
func (p PromptSet) SystemFor(role contractx.Role) string {
	if role.Allows(contractx.RoleStaff) && p.Staff != "" {
		return p.Concierge + "\n\n" + p.Staff
	}
	return p.Concierge
}
