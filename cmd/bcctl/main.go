package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmerrifield20/bharatchain/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	registryURL  string
	cfgFile      string
	outputFormat string
	citizenToken string
	insecure     bool
	timeout      time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bcctl",
	Short: "BharatChain registry CLI",
	Long: `bcctl talks to a BharatChain registry.

It manages consents, reads audit trails and records, requests
zero-knowledge claims and inspects the hash chain.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".bcctl"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("BCCTL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if registryURL == "" {
			registryURL = viper.GetString("registry_url")
		}
		if registryURL == "" {
			registryURL = "http://localhost:8000"
		}
		if citizenToken == "" {
			citizenToken = viper.GetString("token")
		}
		switch outputFormat {
		case formatText, formatJSON, formatYAML:
			return nil
		default:
			return fmt.Errorf("unknown --format %q (want text, json or yaml)", outputFormat)
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.bcctl/config.yaml)")
	pf.StringVar(&registryURL, "registry", "", "registry base URL (default http://localhost:8000)")
	pf.StringVarP(&outputFormat, "format", "o", formatText, "output format: text, json or yaml")
	pf.StringVar(&citizenToken, "token", "", "citizen session token sent as a bearer credential")
	pf.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification (development only)")
	pf.DurationVar(&timeout, "timeout", 15*time.Second, "per-request timeout")

	rootCmd.AddCommand(statusCmd, healthCmd, registerCmd, tokenCmd)
	rootCmd.AddCommand(grantCmd, revokeCmd, consentsCmd, auditCmd)
	rootCmd.AddCommand(recordsCmd, proveCmd)
	rootCmd.AddCommand(blocksCmd, blockCmd, verifyCmd, versionCmd)
}

func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithTimeout(timeout)}
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	if citizenToken != "" {
		opts = append(opts, client.WithBearerToken(citizenToken))
	}
	return client.New(registryURL, opts...)
}

// ── status / health ──────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the registry banner",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}
		return render(st, func(p *printer) {
			p.kv("System", st.System)
			p.kv("Version", st.Version)
			p.kv("Status", st.Status)
			p.kv("Blockchain", st.Blockchain)
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show per-component health",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		h, herr := c.HealthCheck(cmd.Context())
		if h == nil {
			return herr
		}
		if err := render(h, func(p *printer) {
			p.kv("API", h.API)
			p.kv("Database", h.Database)
			p.kv("Blockchain", h.Blockchain)
			p.kv("Crypto", h.Crypto)
			if len(h.Dependencies) > 0 {
				p.blank()
				p.row("TARGET", "STATUS", "FAILURES", "LAST ERROR")
				for _, name := range sortedKeys(h.Dependencies) {
					d := h.Dependencies[name]
					p.row(name, d.Status, d.Failures, d.LastError)
				}
			}
		}); err != nil {
			return err
		}
		return herr
	},
}

// ── identity ─────────────────────────────────────────────────────────────────

var (
	regUID     string
	regName    string
	regDOB     string
	regGender  string
	regAddress string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a citizen identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Register(cmd.Context(), client.RegisterRequest{
			UID:      regUID,
			FullName: regName,
			DOB:      regDOB,
			Gender:   regGender,
			Address:  regAddress,
		})
		if err != nil {
			return err
		}
		return render(res, func(p *printer) {
			p.kv("Citizen ID", res.CitizenID)
			p.kv("DID", res.DID)
			p.kv("Block", res.BlockHash)
		})
	},
}

func init() {
	registerCmd.Flags().StringVar(&regUID, "uid", "", "12-digit UID (required)")
	registerCmd.Flags().StringVar(&regName, "name", "", "full name (required)")
	registerCmd.Flags().StringVar(&regDOB, "dob", "", "date of birth, YYYY-MM-DD (required)")
	registerCmd.Flags().StringVar(&regGender, "gender", "", "gender")
	registerCmd.Flags().StringVar(&regAddress, "address", "", "address")
	_ = registerCmd.MarkFlagRequired("uid")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("dob")
}

var tokenUID string

var tokenCmd = &cobra.Command{
	Use:   "token <citizen-id>",
	Short: "Exchange a citizen UID for a session token",
	Long: `token prints a citizen session token. Pass it to later commands with
--token, or store it under "token" in ~/.bcctl/config.yaml.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		tok, err := c.IssueToken(cmd.Context(), args[0], tokenUID)
		if err != nil {
			return err
		}
		return render(tok, func(p *printer) {
			p.kv("Token", tok.AccessToken)
			p.kv("Expires", tok.ExpiresAt)
		})
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUID, "uid", "", "citizen UID (required)")
	_ = tokenCmd.MarkFlagRequired("uid")
}

// ── consent ──────────────────────────────────────────────────────────────────

var (
	grantUID       string
	grantRequester string
	grantName      string
	grantModules   []string
	grantDays      int
)

var grantCmd = &cobra.Command{
	Use:     "grant <citizen-id>",
	Short:   "Grant a requester access to data modules",
	Example: `  bcctl grant 7c9e6679-... --requester APOLLO_HOSPITAL --modules health --days 30
  bcctl grant 7c9e6679-... --requester INCOME_TAX_DEPT --modules financial,property`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Grant(cmd.Context(), args[0], client.GrantRequest{
			CitizenUID:    grantUID,
			RequesterID:   grantRequester,
			RequesterName: grantName,
			Modules:       grantModules,
			DurationDays:  grantDays,
		})
		if err != nil {
			return err
		}
		return render(res, func(p *printer) {
			p.kv("Consent", res.ConsentID)
			p.kv("Requester", res.RequesterID)
			p.kv("Modules", strings.Join(res.Modules, ","))
			p.kv("Expires", res.ExpiresAt)
			p.kv("Superseded", res.Superseded)
			p.kv("Block", res.BlockHash)
		})
	},
}

func init() {
	grantCmd.Flags().StringVar(&grantUID, "uid", "", "citizen UID, proves the caller is the citizen")
	grantCmd.Flags().StringVar(&grantRequester, "requester", "", "requester ID (required)")
	grantCmd.Flags().StringVar(&grantName, "requester-name", "", "requester display name")
	grantCmd.Flags().StringSliceVar(&grantModules, "modules", nil, "comma-separated data modules (required)")
	grantCmd.Flags().IntVar(&grantDays, "days", 0, "consent duration in days; 0 uses the registry default")
	_ = grantCmd.MarkFlagRequired("requester")
	_ = grantCmd.MarkFlagRequired("modules")
}

var (
	revokeUID       string
	revokeRequester string
)

var revokeCmd = &cobra.Command{
	Use:   "revoke <citizen-id>",
	Short: "Revoke every active consent given to a requester",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Revoke(cmd.Context(), args[0], revokeRequester, revokeUID)
		if err != nil {
			return err
		}
		return render(res, func(p *printer) {
			p.kv("Status", res.Status)
			p.kv("Deactivated", res.Deactivated)
			p.kv("Block", res.BlockHash)
		})
	},
}

func init() {
	revokeCmd.Flags().StringVar(&revokeUID, "uid", "", "citizen UID, proves the caller is the citizen")
	revokeCmd.Flags().StringVar(&revokeRequester, "requester", "", "requester ID (required)")
	_ = revokeCmd.MarkFlagRequired("requester")
}

// consentRow pairs a citizen with its consents for multi-citizen listings.
type consentRow struct {
	CitizenID string           `json:"citizen_id"`
	Consents  []client.Consent `json:"consents"`
	Error     string           `json:"error,omitempty"`
}

var consentsCmd = &cobra.Command{
	Use:   "consents <citizen-id> [citizen-id] ...",
	Short: "List active consents for one or more citizens",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		rows := make([]consentRow, len(args))
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(8)
		for i, id := range args {
			g.Go(func() error {
				list, err := c.ListConsents(ctx, id)
				rows[i] = consentRow{CitizenID: id, Consents: list}
				if err != nil {
					rows[i].Error = err.Error()
				}
				return nil
			})
		}
		_ = g.Wait()

		var v any = rows
		if len(rows) == 1 {
			if rows[0].Error != "" {
				return fmt.Errorf("list consents for %s: %s", rows[0].CitizenID, rows[0].Error)
			}
			v = rows[0].Consents
		}
		return render(v, func(p *printer) {
			p.row("CITIZEN", "REQUESTER", "TIER", "MODULES", "EXPIRES", "EXPIRED", "ERROR")
			for _, r := range rows {
				if r.Error != "" {
					p.row(r.CitizenID, "", "", "", "", "", r.Error)
					continue
				}
				for _, cs := range r.Consents {
					p.row(r.CitizenID, cs.RequesterID, cs.Tier, strings.Join(cs.Modules, ","), cs.ExpiresAt, cs.Expired, "")
				}
			}
		})
	},
}

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit <citizen-id>",
	Short: "Show who accessed or attempted to access a citizen's data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		entries, err := c.Audit(cmd.Context(), args[0], auditLimit)
		if err != nil {
			return err
		}
		return render(entries, func(p *printer) {
			p.row("TIME", "ACTOR", "ACTION", "MODULE", "DETAILS")
			for _, e := range entries {
				p.row(e.Timestamp, e.Actor, e.Action, e.Module, e.Details)
			}
		})
	},
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum entries to return")
}

// ── records / zk ─────────────────────────────────────────────────────────────

var (
	recordsRequester string
	recordsName      string
)

var recordsCmd = &cobra.Command{
	Use:     "records <module> <citizen-id>",
	Short:   "Read a citizen's records in a module as a requester",
	Example: `  bcctl records health 7c9e6679-... --requester APOLLO_HOSPITAL`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		recs, err := c.ListRecords(cmd.Context(), args[0], args[1], client.Requester{ID: recordsRequester, Name: recordsName})
		if err != nil {
			return err
		}
		return render(recs, func(p *printer) {
			p.row("ID", "KIND", "REFERENCE", "DATE", "BLOCK")
			for _, r := range recs {
				p.row(r.ID, r.Kind, r.Reference, r.RecordDate.Format(time.DateOnly), shortHash(r.BlockHash))
			}
		})
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsRequester, "requester", "", "requester ID (required)")
	recordsCmd.Flags().StringVar(&recordsName, "requester-name", "", "requester display name")
	_ = recordsCmd.MarkFlagRequired("requester")
}

var (
	proveRequester string
	proveThreshold float64
)

var proveCmd = &cobra.Command{
	Use:   "prove <citizen-id> <claim>",
	Short: "Request a zero-knowledge claim (age_over_18, income_above, is_citizen)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		proof, err := c.Prove(cmd.Context(), args[0], proveRequester, args[1], proveThreshold)
		if err != nil {
			return err
		}
		return render(proof, func(p *printer) {
			p.kv("Claim", proof.Claim)
			p.kv("Verified", proof.Verified)
			p.kv("Type", proof.ProofType)
			p.kv("Proof", proof.Proof)
		})
	},
}

func init() {
	proveCmd.Flags().StringVar(&proveRequester, "requester", "", "requester ID (required)")
	proveCmd.Flags().Float64Var(&proveThreshold, "threshold", 0, "income bound for income_above")
	_ = proveCmd.MarkFlagRequired("requester")
}

// ── chain ────────────────────────────────────────────────────────────────────

var (
	blocksOffset int
	blocksLimit  int
)

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List ledger blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		page, err := c.Blocks(cmd.Context(), blocksOffset, blocksLimit)
		if err != nil {
			return err
		}
		return render(page, func(p *printer) {
			p.row("SEQ", "TYPE", "HASH", "PREV", "TIME")
			for _, b := range page.Blocks {
				p.row(b.Sequence, b.Type, shortHash(b.Hash), shortHash(b.PrevHash), b.Timestamp.Format(time.RFC3339))
			}
			p.blank()
			p.kv("Total", page.Total)
		})
	},
}

func init() {
	blocksCmd.Flags().IntVar(&blocksOffset, "offset", 0, "first block to list")
	blocksCmd.Flags().IntVar(&blocksLimit, "limit", 20, "maximum blocks to list")
}

var blockCmd = &cobra.Command{
	Use:   "block <hash>",
	Short: "Show one ledger block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		b, err := c.Block(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(b, func(p *printer) {
			p.kv("Sequence", b.Sequence)
			p.kv("Type", b.Type)
			p.kv("Hash", b.Hash)
			p.kv("Previous", b.PrevHash)
			p.kv("Time", b.Timestamp.Format(time.RFC3339))
			for _, k := range sortedKeys(b.Payload) {
				p.kv("  "+k, b.Payload[k])
			}
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the registry's hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		v, err := c.VerifyChain(ctx)
		if err != nil {
			return err
		}
		if err := render(v, func(p *printer) {
			if v.Valid {
				p.kv("Chain", "valid")
				return
			}
			p.kv("Chain", "INVALID")
			p.kv("Error", v.Error)
		}); err != nil {
			return err
		}
		if !v.Valid {
			return fmt.Errorf("chain verification failed")
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bcctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bcctl %s (BharatChain)\n", version)
	},
}
