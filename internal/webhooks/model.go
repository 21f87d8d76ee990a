package webhooks

import (
	"slices"
	"time"

	"github.com/jmerrifield20/bharatchain/internal/audit"
)

// EventAudit is the only event type dispatched today.
const EventAudit = "audit.entry"

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-BharatChain-Signature"

// Subscription is a static webhook endpoint. An empty Actions list receives
// every audit action.
type Subscription struct {
	URL     string
	Secret  string
	Actions []audit.Action
}

func (s Subscription) wants(a audit.Action) bool {
	return len(s.Actions) == 0 || slices.Contains(s.Actions, a)
}

// Event is the JSON body POSTed to a subscription.
type Event struct {
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Entry     *audit.Entry `json:"entry"`
}
