package notification

// TemplateSet holds the configured confirmation templates, keyed by the scope
// they were registered for.
type TemplateSet struct {
	// ByEvent maps event id -> template name.
	ByEvent map[string]string
	// ByCategory maps event category -> template name.
	ByCategory map[string]string
	// Global is the last-resort template.
	Global string
}

// DefaultTemplates returns the stock template set: a global fallback plus the
// category templates the notification service ships with.
func DefaultTemplates() TemplateSet {
	return TemplateSet{
		ByEvent: map[string]string{},
		ByCategory: map[string]string{
			"concert":    "booking-confirmation-concert",
			"conference": "booking-confirmation-conference",
		},
		Global: "booking-confirmation",
	}
}

// ResolveTemplate picks the confirmation template with ordered fallback:
// event-specific, then category, then global. Pure lookup, no I/O.
func ResolveTemplate(set TemplateSet, eventID, category string) string {
	if name, ok := set.ByEvent[eventID]; ok && name != "" {
		return name
	}
	if name, ok := set.ByCategory[category]; ok && name != "" {
		return name
	}
	return set.Global
}
