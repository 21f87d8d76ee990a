package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmerrifield20/bharatchain/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type receiver struct {
	mu     sync.Mutex
	bodies [][]byte
	sigs   []string
	fail   atomic.Int32 // respond 500 this many times first
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.fail.Add(-1) >= 0 {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.bodies = append(r.bodies, body)
	r.sigs = append(r.sigs, req.Header.Get(SignatureHeader))
	r.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func newDispatcher(subs ...Subscription) *Dispatcher {
	d := NewDispatcher(subs, zap.NewNop())
	d.delays = []time.Duration{0, time.Millisecond, time.Millisecond}
	return d
}

func TestPublish_SignsAndDelivers(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	d := newDispatcher(Subscription{URL: srv.URL, Secret: "s3cret"})
	entry := &audit.Entry{CitizenID: "c-1", ActorID: "APOLLO", Action: audit.ActionDenied, Module: "health"}
	require.NoError(t, d.Publish(context.Background(), entry))
	d.Wait()

	require.Len(t, rcv.bodies, 1)
	assert.True(t, VerifySignature(rcv.bodies[0], "s3cret", rcv.sigs[0]))
	assert.False(t, VerifySignature(rcv.bodies[0], "other", rcv.sigs[0]))

	var got Event
	require.NoError(t, json.Unmarshal(rcv.bodies[0], &got))
	assert.Equal(t, EventAudit, got.Type)
	assert.Equal(t, audit.ActionDenied, got.Entry.Action)
	assert.Equal(t, "c-1", got.Entry.CitizenID)
}

func TestPublish_FiltersByAction(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	d := newDispatcher(Subscription{URL: srv.URL, Actions: []audit.Action{audit.ActionConsentRevoked}})
	_ = d.Publish(context.Background(), &audit.Entry{Action: audit.ActionRead})
	_ = d.Publish(context.Background(), &audit.Entry{Action: audit.ActionConsentRevoked})
	d.Wait()

	assert.Len(t, rcv.bodies, 1)
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	rcv := &receiver{}
	rcv.fail.Store(2)
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	var outcomes []bool
	var mu sync.Mutex
	d := newDispatcher(Subscription{URL: srv.URL})
	d.SetMetricsRecorder(func(ok bool) {
		mu.Lock()
		outcomes = append(outcomes, ok)
		mu.Unlock()
	})

	_ = d.Publish(context.Background(), &audit.Entry{Action: audit.ActionWrite})
	d.Wait()

	assert.Len(t, rcv.bodies, 1)
	assert.Equal(t, []bool{false, false, true}, outcomes)
}

func TestPublish_SurvivesCancelledContext(t *testing.T) {
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newDispatcher(Subscription{URL: srv.URL})
	_ = d.Publish(ctx, &audit.Entry{Action: audit.ActionRead})
	d.Wait()

	assert.Len(t, rcv.bodies, 1)
}
