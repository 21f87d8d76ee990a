// Package client is the Go SDK for the BharatChain registry API.
//
// It wraps the HTTP surface for consent management, audit trails, record
// access, zero-knowledge claims and chain inspection:
//
//	c, err := client.New("http://localhost:8000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := c.Grant(ctx, citizenID, client.GrantRequest{
//	    CitizenUID:    uid,
//	    RequesterID:   "APOLLO_HOSPITAL",
//	    RequesterName: "Apollo Hospitals",
//	    Modules:       []string{"health"},
//	    DurationDays:  30,
//	})
//
// # Citizen session tokens
//
// Consent routes accept an optional bearer token. Exchange the citizen's UID
// for one with IssueToken and keep it on the client:
//
//	tok, err := c.IssueToken(ctx, citizenID, uid)
//	c = c.WithToken(tok.AccessToken)
//
// # Errors
//
// Non-2xx responses are returned as *APIError. Use errors.As to read the
// status code, or the helpers IsNotFound and IsForbidden.
package client
