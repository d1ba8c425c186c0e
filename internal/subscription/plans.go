package subscription

// Plans is the hardcoded plan catalogue. New subscriptions copy these
// limits into their snapshot; existing snapshots are never touched.
var Plans = map[Plan]Limits{
	PlanTrial: {
		MessagesPerMonth:      500,
		CampaignsPerMonth:     2,
		RecipientsPerCampaign: 100,
		WhatsAppNumbers:       1,
	},
	PlanBasic: {
		MessagesPerMonth:      10000,
		CampaignsPerMonth:     20,
		RecipientsPerCampaign: 1000,
		WhatsAppNumbers:       2,
	},
	PlanPro: {
		MessagesPerMonth:      100000,
		CampaignsPerMonth:     200,
		RecipientsPerCampaign: 10000,
		WhatsAppNumbers:       10,
	},
	PlanEnterprise: {
		MessagesPerMonth:      0,
		CampaignsPerMonth:     0,
		RecipientsPerCampaign: 0,
		WhatsAppNumbers:       0,
	},
}

// LimitsFor looks up the catalogue, falling back to trial limits for an
// unrecognised plan.
func LimitsFor(p Plan) Limits {
	limits, ok := Plans[p]
	if !ok {
		return Plans[PlanTrial]
	}
	return limits
}

// ValidPlan returns true if the plan name is recognised.
func ValidPlan(p Plan) bool {
	_, ok := Plans[p]
	return ok
}
