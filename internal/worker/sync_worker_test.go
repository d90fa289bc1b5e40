package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"finsync/internal/amqp"
	"finsync/internal/core"
	"finsync/internal/log"
	"finsync/internal/services"
)

type fakeSyncer struct {
	calls []services.SyncOptions
	err   error
}

func (f *fakeSyncer) SyncAccount(_ context.Context, _, _ string, opts services.SyncOptions) (core.SyncOutcome, error) {
	f.calls = append(f.calls, opts)
	return core.SyncOutcome{RunID: "run-1", TotalTransactions: 2}, f.err
}

func TestHandleSyncRequest_PassesWindowAndTrigger(t *testing.T) {
	syncer := &fakeSyncer{}
	w := NewSyncWorker(syncer, log.Discard())

	window := core.DateRange{
		From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	msg := amqp.NewSyncRequestMessage("user-1", "acc-1", &window)

	if err := w.HandleSyncRequest(context.Background(), msg); err != nil {
		t.Fatalf("HandleSyncRequest() error = %v", err)
	}
	if len(syncer.calls) != 1 {
		t.Fatalf("expected 1 sync, got %d", len(syncer.calls))
	}
	got := syncer.calls[0]
	if got.Trigger != core.TriggerQueued {
		t.Errorf("Trigger = %v, want queued", got.Trigger)
	}
	if got.Range == nil || !got.Range.From.Equal(window.From) || !got.Range.To.Equal(window.To) {
		t.Errorf("Range = %v, want %v", got.Range, window)
	}
}

func TestHandleSyncRequest_ErrorHandling(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantRequeue bool
	}{
		{"account gone", core.NewError(core.KindNotFound, core.CodeAccountNotFound, "account not found"), false},
		{"bad account", core.NewError(core.KindAccountState, core.CodeInvalidAccount, "missing phone"), false},
		{"already syncing", core.NewError(core.KindConflict, core.CodeSyncInProgress, "busy"), false},
		{"provider auth", core.NewError(core.KindAuth, core.CodeProviderAuth, "rejected"), false},
		{"provider network", core.NewError(core.KindProvider, core.CodeProviderNetwork, "unreachable"), true},
		{"provider timeout", core.NewError(core.KindTimeout, core.CodeProviderTimeout, "slow"), true},
		{"untyped failure", errors.New("finalize sync run: disk I/O error"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewSyncWorker(&fakeSyncer{err: tt.err}, log.Discard())
			err := w.HandleSyncRequest(context.Background(), amqp.NewSyncRequestMessage("user-1", "acc-1", nil))
			if (err != nil) != tt.wantRequeue {
				t.Errorf("HandleSyncRequest() error = %v, wantRequeue %v", err, tt.wantRequeue)
			}
		})
	}
}
