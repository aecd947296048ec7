// Package nav resolves post-transition redirect hints from configured route
// templates.
package nav

import (
	"strings"

	"argus/internal/config"
	"argus/internal/workflow"
)

type Resolver struct {
	Routes config.RoutesConfig
}

// ResolveRedirect expands the route template for an event. Unknown events
// yield an empty hint; callers treat that as "stay on the current page".
func (r Resolver) ResolveRedirect(event, mandateID, investigatorID string) string {
	var tpl string
	switch event {
	case workflow.EventCandidatureAccepted, workflow.EventInvestigatorAssigned:
		tpl = r.Routes.MandateAssigned
	case workflow.EventMandateCompleted:
		tpl = r.Routes.MandateCompleted
	}
	if tpl == "" {
		return ""
	}
	tpl = strings.ReplaceAll(tpl, "{mandate}", mandateID)
	tpl = strings.ReplaceAll(tpl, "{investigator}", investigatorID)
	return tpl
}
