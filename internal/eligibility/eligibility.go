// Package eligibility decides whether an investigator may be assigned to a
// mandate. The rules mirror the license-verification back-office: both
// parties must hold a verified license unless the deployment relaxes that.
package eligibility

import (
	"context"
	"errors"
	"fmt"

	"argus/internal/config"
	"argus/internal/store"
	"argus/internal/workflow"
)

type Checker struct {
	Store  store.Store
	Config *config.Config
}

func (c Checker) rules() config.EligibilityConfig {
	if c.Config != nil {
		return c.Config.Eligibility
	}
	return config.EligibilityConfig{RequireVerifiedInvestigator: true, RequireVerifiedAgency: true}
}

// ValidateAssignment applies the assignment rules. A rule violation is a
// declined decision with a verbatim reason, not an error; errors are reserved
// for store failures.
func (c Checker) ValidateAssignment(ctx context.Context, mandateID, investigatorID string) (workflow.Decision, error) {
	rules := c.rules()
	inv, err := c.Store.GetInvestigator(ctx, investigatorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return declined("investigator %s is not registered", investigatorID), nil
		}
		return workflow.Decision{}, err
	}
	if inv.Suspended {
		return declined("investigator %s is suspended", investigatorID), nil
	}
	if rules.RequireVerifiedInvestigator && !inv.Verified {
		return declined("investigator %s does not hold a verified license", investigatorID), nil
	}
	m, err := c.Store.GetMandate(ctx, mandateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return declined("mandate %s does not exist", mandateID), nil
		}
		return workflow.Decision{}, err
	}
	if rules.RequireVerifiedAgency {
		agency, err := c.Store.GetAgency(ctx, m.AgencyID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return declined("agency %s is not registered", m.AgencyID), nil
			}
			return workflow.Decision{}, err
		}
		if !agency.Verified {
			return declined("agency %s does not hold a verified license", m.AgencyID), nil
		}
	}
	return workflow.Decision{Valid: true}, nil
}

func declined(format string, args ...any) workflow.Decision {
	return workflow.Decision{Valid: false, Reason: fmt.Sprintf(format, args...)}
}
