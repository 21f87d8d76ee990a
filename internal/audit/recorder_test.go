package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/bharatchain/internal/audit"
	"go.uber.org/zap"
)

type stubPublisher struct {
	published []*audit.Entry
	err       error
}

func (p *stubPublisher) Publish(_ context.Context, e *audit.Entry) error {
	p.published = append(p.published, e)
	return p.err
}

type failingStore struct{}

func (failingStore) Append(context.Context, *audit.Entry) error { return errors.New("disk full") }
func (failingStore) ListByCitizen(context.Context, string, int) ([]*audit.Entry, error) {
	return nil, nil
}

func TestRecorder_FillsIDAndTimestamp(t *testing.T) {
	store := audit.NewMemoryStore()
	r := audit.NewRecorder(store, zap.NewNop())

	e := &audit.Entry{CitizenID: "c1", ActorID: "APOLLO_HOSPITAL", Action: audit.ActionWrite, Module: "health"}
	if err := r.Record(context.Background(), e); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if e.ID == uuid.Nil {
		t.Error("expected an ID to be assigned")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected a timestamp to be assigned")
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d entries, want 1", store.Len())
	}
}

func TestRecorder_ListNewestFirst(t *testing.T) {
	store := audit.NewMemoryStore()
	r := audit.NewRecorder(store, zap.NewNop())
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, action := range []audit.Action{audit.ActionConsentGranted, audit.ActionWrite, audit.ActionConsentRevoked} {
		_ = r.Record(ctx, &audit.Entry{
			CitizenID: "c1", ActorID: "CITIZEN", Action: action, Module: "consent",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	_ = r.Record(ctx, &audit.Entry{CitizenID: "other", ActorID: "UIDAI", Action: audit.ActionRead})

	got, err := r.List(ctx, "c1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].Action != audit.ActionConsentRevoked || got[2].Action != audit.ActionConsentGranted {
		t.Errorf("order: got %s..%s, want newest first", got[0].Action, got[2].Action)
	}

	got, _ = r.List(ctx, "c1", 2)
	if len(got) != 2 {
		t.Errorf("limit 2: got %d entries", len(got))
	}
}

func TestRecorder_PublishFailureIsNotFatal(t *testing.T) {
	r := audit.NewRecorder(audit.NewMemoryStore(), zap.NewNop())
	pub := &stubPublisher{err: errors.New("broker down")}
	r.SetPublisher(pub)

	if err := r.Record(context.Background(), &audit.Entry{CitizenID: "c1", Action: audit.ActionRead}); err != nil {
		t.Fatalf("publish failure must not fail Record: %v", err)
	}
	if len(pub.published) != 1 {
		t.Errorf("publisher called %d times, want 1", len(pub.published))
	}
}

func TestRecorder_StoreFailureSkipsPublish(t *testing.T) {
	r := audit.NewRecorder(failingStore{}, zap.NewNop())
	pub := &stubPublisher{}
	r.SetPublisher(pub)

	if err := r.Record(context.Background(), &audit.Entry{CitizenID: "c1"}); err == nil {
		t.Fatal("expected store error")
	}
	if len(pub.published) != 0 {
		t.Error("an entry that was not stored must not be published")
	}
}

func TestEntry_Actor(t *testing.T) {
	e := audit.Entry{ActorID: "HDFC_BANK"}
	if e.Actor() != "HDFC_BANK" {
		t.Errorf("Actor() = %q", e.Actor())
	}
	e.ActorName = "HDFC Bank Ltd"
	if e.Actor() != "HDFC Bank Ltd" {
		t.Errorf("Actor() = %q", e.Actor())
	}
}

func TestPublishers_FanOutJoinsErrors(t *testing.T) {
	ok := &stubPublisher{}
	bad := &stubPublisher{err: errors.New("broker down")}
	ps := audit.Publishers{bad, ok}

	err := ps.Publish(context.Background(), &audit.Entry{CitizenID: "c1"})
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("Publish() error = %v, want broker down", err)
	}
	if len(ok.published) != 1 || len(bad.published) != 1 {
		t.Error("every publisher must see the entry")
	}
}
