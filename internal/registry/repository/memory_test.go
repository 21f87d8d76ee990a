package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jmerrifield20/bharatchain/internal/registry/model"
	"github.com/jmerrifield20/bharatchain/internal/registry/repository"
)

func TestMemoryCitizenRepository(t *testing.T) {
	r := repository.NewMemoryCitizenRepository()
	ctx := context.Background()

	c := &model.Citizen{DID: "did:bharatchain:a", UIDHash: "h1"}
	if err := r.Create(ctx, c); err != nil {
		t.Fatal(err)
	}
	if c.ID == uuid.Nil || !c.IsActive || c.CreatedAt.IsZero() {
		t.Errorf("Create did not fill defaults: %+v", c)
	}
	if err := r.Create(ctx, &model.Citizen{DID: "did:bharatchain:b", UIDHash: "h1"}); !errors.Is(err, repository.ErrDuplicateCitizen) {
		t.Errorf("duplicate uid hash error = %v", err)
	}

	c.DID = "mutated"
	got, err := r.GetByUIDHash(ctx, "h1")
	if err != nil || got.DID != "did:bharatchain:a" {
		t.Errorf("GetByUIDHash() = %+v, %v (stored copy mutated?)", got, err)
	}

	if err := r.SetBlockHash(ctx, c.ID, "abc"); err != nil {
		t.Fatal(err)
	}
	got.IrisHash = "iris"
	if err := r.UpdateBiometrics(ctx, got); err != nil {
		t.Fatal(err)
	}
	got, _ = r.GetByID(ctx, c.ID)
	if got.BlockHash != "abc" || got.IrisHash != "iris" {
		t.Errorf("updates lost: %+v", got)
	}

	if err := r.Delete(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetByID(ctx, c.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetByID after delete = %v", err)
	}
	if err := r.SetBlockHash(ctx, c.ID, "x"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("SetBlockHash on missing = %v", err)
	}
}

func TestMemoryRecordRepository(t *testing.T) {
	r := repository.NewMemoryRecordRepository()
	ctx := context.Background()
	citizen := uuid.New()

	p1 := &model.Record{CitizenID: citizen, Module: "property", Reference: "PROP-MH-0000AAAA",
		Attributes: map[string]any{"area_sqft": 900}}
	if err := r.Create(ctx, p1); err != nil {
		t.Fatal(err)
	}
	dup := &model.Record{CitizenID: uuid.New(), Module: "property", Reference: "PROP-MH-0000AAAA"}
	if err := r.Create(ctx, dup); !errors.Is(err, repository.ErrDuplicateReference) {
		t.Errorf("duplicate property uid error = %v", err)
	}
	// Only property references are unique.
	for i := 0; i < 2; i++ {
		if err := r.Create(ctx, &model.Record{CitizenID: citizen, Module: "assets", Reference: "CDSL"}); err != nil {
			t.Fatal(err)
		}
	}

	props, _ := r.ListByCitizen(ctx, citizen, "property")
	if len(props) != 1 {
		t.Fatalf("got %d property records", len(props))
	}
	if props[0].Attributes["area_sqft"] != 900.0 {
		t.Errorf("attributes not normalised like JSONB: %#v", props[0].Attributes["area_sqft"])
	}
	assets, _ := r.ListByCitizen(ctx, citizen, "assets")
	if len(assets) != 2 {
		t.Errorf("got %d asset records", len(assets))
	}

	if err := r.SetBlockHash(ctx, p1.ID, "h"); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, assets[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, assets[0].ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second delete = %v", err)
	}
}
