package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/ledger"
)

// RecordInput is the module-specific body of a record write.
type RecordInput interface {
	Module() consent.Module
	draft(now time.Time) (*draft, error)
}

// draft is a RecordInput lowered to the generic record shape.
type draft struct {
	kind       string
	reference  string
	attrs      map[string]any
	sensitive  map[string]any
	recordDate time.Time
	blockType  string
	event      string
	block      map[string]any
	details    string
	status     string
}

// HealthRecordInput adds a health record (prescription, diagnosis,
// vaccination, surgery). RecordData is typically a FHIR resource.
type HealthRecordInput struct {
	RecordType   string
	ProviderName string
	ProviderID   string
	RecordData   map[string]any
	RecordDate   *time.Time
}

func (HealthRecordInput) Module() consent.Module { return consent.ModuleHealth }

func (in HealthRecordInput) draft(now time.Time) (*draft, error) {
	if in.RecordType == "" || in.ProviderID == "" {
		return nil, fmt.Errorf("%w: record_type and provider_id are required", ErrInvalidInput)
	}
	date := now
	if in.RecordDate != nil {
		date = in.RecordDate.UTC()
	}
	return &draft{
		kind:       in.RecordType,
		reference:  in.ProviderID,
		attrs:      map[string]any{"provider_name": in.ProviderName, "provider_id": in.ProviderID},
		sensitive:  map[string]any{"record_data": in.RecordData},
		recordDate: date,
		blockType:  ledger.TypeHealthRecord,
		event:      "HEALTH_RECORD_CREATED",
		block:      map[string]any{"record_type": in.RecordType, "provider_id": in.ProviderID},
		details:    "Created " + in.RecordType,
		status:     "created",
	}, nil
}

// FinancialRecordInput adds a tax, credit or GST record.
type FinancialRecordInput struct {
	PANHash       string
	FinancialYear string
	RecordType    string
	Data          map[string]any
	TotalIncome   *float64
	TaxPaid       *float64
}

func (FinancialRecordInput) Module() consent.Module { return consent.ModuleFinancial }

func (in FinancialRecordInput) draft(now time.Time) (*draft, error) {
	if in.RecordType == "" || in.FinancialYear == "" {
		return nil, fmt.Errorf("%w: record_type and financial_year are required", ErrInvalidInput)
	}
	sensitive := map[string]any{"data": in.Data}
	if in.TotalIncome != nil {
		sensitive["total_income"] = *in.TotalIncome
	}
	if in.TaxPaid != nil {
		sensitive["tax_paid"] = *in.TaxPaid
	}
	return &draft{
		kind:       in.RecordType,
		reference:  in.PANHash,
		attrs:      map[string]any{"financial_year": in.FinancialYear},
		sensitive:  sensitive,
		recordDate: now,
		blockType:  ledger.TypeFinancialRecord,
		event:      "FINANCIAL_RECORD_CREATED",
		block:      map[string]any{"record_type": in.RecordType, "financial_year": in.FinancialYear},
		details:    fmt.Sprintf("Created %s for %s", in.RecordType, in.FinancialYear),
		status:     "created",
	}, nil
}

// PropertyInput registers a land or property title. The property UID is
// assigned on registration.
type PropertyInput struct {
	PropertyType     string
	State            string
	District         string
	AreaSqft         float64
	RegisteredValue  float64
	RegistrationDate time.Time
	DocumentData     map[string]any
}

func (PropertyInput) Module() consent.Module { return consent.ModuleProperty }

func (in PropertyInput) draft(now time.Time) (*draft, error) {
	state := strings.ToUpper(strings.TrimSpace(in.State))
	if in.PropertyType == "" || len(state) < 2 || in.District == "" {
		return nil, fmt.Errorf("%w: property_type, state and district are required", ErrInvalidInput)
	}
	if in.AreaSqft <= 0 {
		return nil, fmt.Errorf("%w: area_sqft must be positive", ErrInvalidInput)
	}
	date := in.RegistrationDate
	if date.IsZero() {
		date = now
	}
	uid := PropertyUID(state)
	return &draft{
		kind:      in.PropertyType,
		reference: uid,
		attrs: map[string]any{
			"property_type":      in.PropertyType,
			"state":              in.State,
			"district":           in.District,
			"area_sqft":          in.AreaSqft,
			"encumbrance_status": "clear",
		},
		sensitive:  map[string]any{"registered_value": in.RegisteredValue, "document_data": in.DocumentData},
		recordDate: date.UTC(),
		blockType:  ledger.TypePropertyTitle,
		event:      "PROPERTY_REGISTERED",
		block: map[string]any{
			"property_uid":  uid,
			"property_type": in.PropertyType,
			"state":         in.State,
			"district":      in.District,
		},
		details: "Registered " + uid,
		status:  "registered",
	}, nil
}

// PropertyUID returns a fresh title identifier: PROP-<first two letters of
// the state>-<8 uppercase hex>.
func PropertyUID(state string) string {
	st := strings.ToUpper(strings.TrimSpace(state))
	if len(st) > 2 {
		st = st[:2]
	}
	return fmt.Sprintf("PROP-%s-%s", st, strings.ToUpper(uuid.NewString()[:8]))
}

// AssetSyncInput records a portfolio snapshot from a depository or fund registry.
type AssetSyncInput struct {
	AssetType     string
	Source        string
	PortfolioData map[string]any
	NetValue      float64
	LTCG          float64
	STCG          float64
}

func (AssetSyncInput) Module() consent.Module { return consent.ModuleAssets }

func (in AssetSyncInput) draft(now time.Time) (*draft, error) {
	if in.AssetType == "" || in.Source == "" {
		return nil, fmt.Errorf("%w: asset_type and source are required", ErrInvalidInput)
	}
	return &draft{
		kind:      in.AssetType,
		reference: in.Source,
		attrs:     map[string]any{"asset_type": in.AssetType, "source": in.Source},
		sensitive: map[string]any{
			"portfolio": in.PortfolioData,
			"net_value": in.NetValue,
			"ltcg":      in.LTCG,
			"stcg":      in.STCG,
		},
		recordDate: now,
		blockType:  ledger.TypeAssetSync,
		event:      "ASSET_SYNCED",
		block:      map[string]any{"asset_type": in.AssetType, "source": in.Source},
		details:    fmt.Sprintf("Synced %s from %s", in.AssetType, in.Source),
		status:     "synced",
	}, nil
}
