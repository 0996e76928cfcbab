package authz

import "github.com/hongminglow/cuecast-be/internal/models"

// Tab is a navigation destination in the production-control app.
type Tab struct {
	Name        string      `json:"name"`
	Title       string      `json:"title"`
	Requirement Requirement `json:"-"`
}

// Navigation lists every tab in display order.
var Navigation = []Tab{
	{Name: "index", Title: "Setup", Requirement: RequirePermission(models.PermSetupAccess)},
	{Name: "stream", Title: "Live", Requirement: RequirePermission(models.PermStreamControl)},
	{Name: "scoreboard", Title: "Scoreboard", Requirement: RequirePermission(models.PermScoreboardManage)},
	{Name: "moments", Title: "Moments", Requirement: RequirePermission(models.PermMomentsControl)},
	{Name: "summary", Title: "Summary", Requirement: RequirePermission(models.PermSummaryAccess)},
	{Name: "users", Title: "Users", Requirement: RequirePermission(models.PermUserManagement)},
}

// VisibleTabs returns the tabs p may open. Tabs that are not Allowed are
// left out entirely rather than disabled.
func VisibleTabs(p *models.Account) []Tab {
	out := make([]Tab, 0, len(Navigation))
	for _, tab := range Navigation {
		if Authorize(p, tab.Requirement).Allowed() {
			out = append(out, tab)
		}
	}
	return out
}

// TabNames is VisibleTabs reduced to names.
func TabNames(p *models.Account) []string {
	tabs := VisibleTabs(p)
	names := make([]string, len(tabs))
	for i, tab := range tabs {
		names[i] = tab.Name
	}
	return names
}
