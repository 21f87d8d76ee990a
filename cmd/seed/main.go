// cmd/seed populates a running registry with demo citizens, consents and
// records for development. It goes through the public API so every write is
// encrypted, anchored on the chain and audited like real traffic.
//
// Running twice is safe: citizens that already exist are reported and skipped.
//
// Usage:
//
//	go run ./cmd/seed
//	REGISTRY_URL=http://localhost:8000 go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jmerrifield20/bharatchain/pkg/client"
)

const defaultRegistry = "http://localhost:8000"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	registry := os.Getenv("REGISTRY_URL")
	if registry == "" {
		registry = defaultRegistry
	}

	c, err := client.New(registry, client.WithTimeout(30*time.Second))
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("reach registry: %w", err)
	}
	fmt.Printf("connected to %s %s (%s)\n", st.System, st.Version, st.Blockchain)

	for _, sc := range citizens {
		if err := seedCitizen(ctx, c, sc); err != nil {
			return fmt.Errorf("seed %s: %w", sc.Register.FullName, err)
		}
	}

	v, err := c.VerifyChain(ctx)
	if err != nil {
		return fmt.Errorf("verify chain: %w", err)
	}
	fmt.Printf("\nseed complete, chain valid=%t\n", v.Valid)
	return nil
}

// ── Seed definitions ─────────────────────────────────────────────────────────

type seedGrant struct {
	Requester     string
	RequesterName string
	Modules       []string
	Days          int
}

type seedRecord struct {
	Module    string
	Requester client.Requester
	Payload   map[string]any
}

type seedCitizen struct {
	Register client.RegisterRequest
	Grants   []seedGrant
	Records  []seedRecord
}

var citizens = []seedCitizen{
	{
		Register: client.RegisterRequest{
			UID: "234567890123", FullName: "Aarav Sharma", DOB: "1988-04-12",
			Gender: "M", Address: "14 MG Road, Pune, Maharashtra",
		},
		Grants: []seedGrant{
			{Requester: "APOLLO_HOSPITAL", RequesterName: "Apollo Hospitals", Modules: []string{"health"}, Days: 90},
			{Requester: "HDFC_BANK", RequesterName: "HDFC Bank", Modules: []string{"financial", "assets"}, Days: 30},
		},
		Records: []seedRecord{
			{
				Module:    "health",
				Requester: client.Requester{ID: "APOLLO_HOSPITAL", Name: "Apollo Hospitals"},
				Payload: map[string]any{
					"record_type":   "lab_report",
					"provider_id":   "APOLLO_PUNE_01",
					"provider_name": "Apollo Hospitals Pune",
					"record_data":   map[string]any{"hba1c": 5.4, "ldl": 102},
					"record_date":   "2026-03-02",
				},
			},
			{
				Module:    "financial",
				Requester: client.Requester{ID: "INCOME_TAX_DEPT", Name: "Income Tax Department"},
				Payload: map[string]any{
					"financial_year": "2025-26",
					"record_type":    "itr",
					"total_income":   1850000,
					"tax_paid":       312000,
				},
			},
			{
				Module:    "property",
				Requester: client.Requester{ID: "SUBREGISTRAR_OFFICE", Name: "Sub-Registrar Pune"},
				Payload: map[string]any{
					"property_type":     "residential",
					"state":             "Maharashtra",
					"district":          "Pune",
					"area_sqft":         1120,
					"registered_value":  8500000,
					"registration_date": "2019-11-20",
				},
			},
			{
				Module:    "assets",
				Requester: client.Requester{ID: "HDFC_BANK", Name: "HDFC Bank"},
				Payload: map[string]any{
					"asset_type":     "mutual_funds",
					"source":         "CAMS",
					"net_value":      640000,
					"ltcg":           42000,
					"portfolio_data": map[string]any{"funds": 4},
				},
			},
		},
	},
	{
		Register: client.RegisterRequest{
			UID: "345678901234", FullName: "Priya Iyer", DOB: "2009-08-30",
			Gender: "F", Address: "7 Anna Salai, Chennai, Tamil Nadu",
		},
		Grants: []seedGrant{
			{Requester: "STAR_HEALTH_INSURANCE", RequesterName: "Star Health", Modules: []string{"health"}, Days: 14},
		},
	},
	{
		Register: client.RegisterRequest{
			UID: "456789012345", FullName: "Rohan Das", DOB: "1975-01-05",
			Gender: "M", Address: "22 Park Street, Kolkata, West Bengal",
		},
		Records: []seedRecord{
			{
				Module:    "financial",
				Requester: client.Requester{ID: "INCOME_TAX_DEPT", Name: "Income Tax Department"},
				Payload: map[string]any{
					"financial_year": "2025-26",
					"record_type":    "itr",
					"total_income":   640000,
					"tax_paid":       38000,
				},
			},
		},
	},
}

// ── Seeding ──────────────────────────────────────────────────────────────────

func seedCitizen(ctx context.Context, c *client.Client, sc seedCitizen) error {
	reg, err := c.Register(ctx, sc.Register)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		fmt.Printf("  skip  %-14s already registered\n", sc.Register.FullName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	fmt.Printf("  ok    %-14s %s\n", sc.Register.FullName, reg.DID)

	tok, err := c.IssueToken(ctx, reg.CitizenID, sc.Register.UID)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	asCitizen := c.WithToken(tok.AccessToken)

	for _, g := range sc.Grants {
		res, err := asCitizen.Grant(ctx, reg.CitizenID, client.GrantRequest{
			RequesterID:   g.Requester,
			RequesterName: g.RequesterName,
			Modules:       g.Modules,
			DurationDays:  g.Days,
		})
		if err != nil {
			return fmt.Errorf("grant %s: %w", g.Requester, err)
		}
		fmt.Printf("        grant %-22s %v until %s\n", g.Requester, res.Modules, res.ExpiresAt)
	}

	for _, r := range sc.Records {
		res, err := c.CreateRecord(ctx, r.Module, reg.CitizenID, r.Requester, r.Payload)
		if err != nil {
			return fmt.Errorf("%s record by %s: %w", r.Module, r.Requester.ID, err)
		}
		ref := res.Reference
		if ref == "" {
			ref = res.RecordID
		}
		fmt.Printf("        %-9s %s\n", r.Module, ref)
	}
	return nil
}
