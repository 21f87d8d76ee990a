package consent

import "strings"

// Tier is the access level a requester falls into.
type Tier string

const (
	// TierGovernment requesters are always allowed, and always audited.
	TierGovernment Tier = "government"
	// TierRegulated requesters need an active, unexpired grant for the module.
	TierRegulated Tier = "regulated"
	// TierCommercial requesters never see raw data; they may only receive
	// zero-knowledge claims.
	TierCommercial Tier = "commercial"
)

// governmentEntities are matched case-insensitively and exactly.
var governmentEntities = map[string]struct{}{
	"UIDAI":               {},
	"INCOME_TAX_DEPT":     {},
	"SUPREME_COURT":       {},
	"HIGH_COURT":          {},
	"DISTRICT_COURT":      {},
	"CBI":                 {},
	"ED":                  {},
	"SEBI":                {},
	"RBI":                 {},
	"ELECTION_COMMISSION": {},
	"MCA":                 {},
	"GST_COUNCIL":         {},
	"SUBREGISTRAR_OFFICE": {},
}

// regulatedKeywords are matched case-insensitively as substrings.
var regulatedKeywords = []string{"BANK", "HOSPITAL", "INSURANCE", "NBFC", "CLINIC"}

// Classify maps a requester identifier to its tier. It accepts any string and
// never fails: anything unrecognised is commercial.
func Classify(requesterID string) Tier {
	id := strings.ToUpper(requesterID)
	if _, ok := governmentEntities[id]; ok {
		return TierGovernment
	}
	for _, kw := range regulatedKeywords {
		if strings.Contains(id, kw) {
			return TierRegulated
		}
	}
	return TierCommercial
}

// GovernmentEntities returns the recognised government identifiers.
func GovernmentEntities() []string {
	out := make([]string, 0, len(governmentEntities))
	for id := range governmentEntities {
		out = append(out, id)
	}
	return out
}
