package prompt

import (
	"strings"
	"testing"

	contractx "github.com/tanpawarit/Chative-Hotel-Concierge/agent/contract"
)

func TestSystemForRole(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	if set.Concierge == "" || set.Staff == "" {
		t.Fatal("expected embedded prompts")
	}

	guest := set.SystemFor(contractx.RoleGuest)
	staff := set.SystemFor(contractx.RoleStaff)
	if strings.Contains(guest, set.Staff) {
		t.Fatal("guest prompt must not include staff addendum")
	}
	if !strings.HasSuffix(staff, set.Staff) {
		t.Fatal("staff prompt must end with staff addendum")
	}
	for _, v := range []string{"{name}", "{role}", "{today}"} {
		if !strings.Contains(guest, v) {
			t.Fatalf("template is missing %s", v)
		}
	}
}
