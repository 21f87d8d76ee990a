package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/bharatchain/internal/consent"
	"github.com/jmerrifield20/bharatchain/internal/registry/service"
	"go.uber.org/zap"
)

// RecordHandler exposes the health, financial, property and assets modules.
// Every route is gated by the consent engine inside RecordService.
type RecordHandler struct {
	svc    *service.RecordService
	logger *zap.Logger
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(svc *service.RecordService, logger *zap.Logger) *RecordHandler {
	return &RecordHandler{svc: svc, logger: logger}
}

// Register mounts POST and GET /<module>/:citizen_id/records for each module.
func (h *RecordHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/health/:citizen_id/records", h.CreateHealth)
	rg.POST("/financial/:citizen_id/records", h.CreateFinancial)
	rg.POST("/property/:citizen_id/records", h.CreateProperty)
	rg.POST("/assets/:citizen_id/records", h.CreateAssets)

	for _, m := range []consent.Module{
		consent.ModuleHealth, consent.ModuleFinancial, consent.ModuleProperty, consent.ModuleAssets,
	} {
		rg.GET("/"+string(m)+"/:citizen_id/records", h.list(m))
	}
}

// requesterFields is embedded in every write body.
type requesterFields struct {
	RequesterID   string `json:"requester_id" binding:"required"`
	RequesterName string `json:"requester_name"`
}

func (r requesterFields) requester(c *gin.Context) service.Requester {
	return service.Requester{ID: r.RequesterID, Name: r.RequesterName, IPAddress: c.ClientIP()}
}

type healthRecordRequest struct {
	requesterFields
	RecordType   string         `json:"record_type"   binding:"required"`
	ProviderName string         `json:"provider_name"`
	ProviderID   string         `json:"provider_id"   binding:"required"`
	RecordData   map[string]any `json:"record_data"`
	RecordDate   string         `json:"record_date"`
}

// CreateHealth handles POST /health/:citizen_id/records.
func (h *RecordHandler) CreateHealth(c *gin.Context) {
	var req healthRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	date, err := parseDate("record_date", req.RecordDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	h.create(c, req.requester(c), service.HealthRecordInput{
		RecordType:   req.RecordType,
		ProviderName: req.ProviderName,
		ProviderID:   req.ProviderID,
		RecordData:   req.RecordData,
		RecordDate:   date,
	})
}

type financialRecordRequest struct {
	requesterFields
	PANHash       string         `json:"pan_hash"`
	FinancialYear string         `json:"financial_year" binding:"required"`
	RecordType    string         `json:"record_type"    binding:"required"`
	Data          map[string]any `json:"data"`
	TotalIncome   *float64       `json:"total_income"`
	TaxPaid       *float64       `json:"tax_paid"`
}

// CreateFinancial handles POST /financial/:citizen_id/records.
func (h *RecordHandler) CreateFinancial(c *gin.Context) {
	var req financialRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.create(c, req.requester(c), service.FinancialRecordInput{
		PANHash:       req.PANHash,
		FinancialYear: req.FinancialYear,
		RecordType:    req.RecordType,
		Data:          req.Data,
		TotalIncome:   req.TotalIncome,
		TaxPaid:       req.TaxPaid,
	})
}

type propertyRequest struct {
	requesterFields
	PropertyType     string         `json:"property_type" binding:"required"`
	State            string         `json:"state"         binding:"required"`
	District         string         `json:"district"      binding:"required"`
	AreaSqft         float64        `json:"area_sqft"`
	RegisteredValue  float64        `json:"registered_value"`
	RegistrationDate string         `json:"registration_date"`
	DocumentData     map[string]any `json:"document_data"`
}

// CreateProperty handles POST /property/:citizen_id/records. The response
// carries the assigned property UID as "reference".
func (h *RecordHandler) CreateProperty(c *gin.Context) {
	var req propertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	date, err := parseDate("registration_date", req.RegistrationDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	in := service.PropertyInput{
		PropertyType:    req.PropertyType,
		State:           req.State,
		District:        req.District,
		AreaSqft:        req.AreaSqft,
		RegisteredValue: req.RegisteredValue,
		DocumentData:    req.DocumentData,
	}
	if date != nil {
		in.RegistrationDate = *date
	}
	h.create(c, req.requester(c), in)
}

type assetSyncRequest struct {
	requesterFields
	AssetType     string         `json:"asset_type" binding:"required"`
	Source        string         `json:"source"     binding:"required"`
	PortfolioData map[string]any `json:"portfolio_data"`
	NetValue      float64        `json:"net_value"`
	LTCG          float64        `json:"ltcg"`
	STCG          float64        `json:"stcg"`
}

// CreateAssets handles POST /assets/:citizen_id/records.
func (h *RecordHandler) CreateAssets(c *gin.Context) {
	var req assetSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.create(c, req.requester(c), service.AssetSyncInput{
		AssetType:     req.AssetType,
		Source:        req.Source,
		PortfolioData: req.PortfolioData,
		NetValue:      req.NetValue,
		LTCG:          req.LTCG,
		STCG:          req.STCG,
	})
}

func (h *RecordHandler) create(c *gin.Context, req service.Requester, in service.RecordInput) {
	res, err := h.svc.Create(c.Request.Context(), c.Param("citizen_id"), req, in)
	if err != nil {
		respondError(c, h.logger, "create "+string(in.Module())+" record", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// list handles GET /<module>/:citizen_id/records?requester_id=&requester_name=.
func (h *RecordHandler) list(m consent.Module) gin.HandlerFunc {
	return func(c *gin.Context) {
		requesterID := c.Query("requester_id")
		if requesterID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requester_id query parameter is required"})
			return
		}
		req := service.Requester{ID: requesterID, Name: c.Query("requester_name"), IPAddress: c.ClientIP()}

		records, err := h.svc.List(c.Request.Context(), c.Param("citizen_id"), req, m)
		if err != nil {
			respondError(c, h.logger, "list "+string(m)+" records", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"citizen_id": c.Param("citizen_id"),
			"module":     m,
			"records":    records,
		})
	}
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates. An empty
// string yields nil.
func parseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%s must be YYYY-MM-DD or RFC 3339", field)
}
