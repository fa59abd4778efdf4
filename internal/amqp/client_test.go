package amqp

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClient_PublishWithoutChannel(t *testing.T) {
	client := &Client{
		exchangeName: "test_exchange",
		queueName:    "test_queue",
	}

	t.Run("publish fails when channel is not open", func(t *testing.T) {
		err := client.PublishLedgerEvent(context.Background(), NewLedgerEvent(EventIncomeCreated, "u1", 1, 100, 100, "Salary"))
		if !errors.Is(err, errChannelClosed) {
			t.Errorf("PublishLedgerEvent() error = %v, want %v", err, errChannelClosed)
		}
	})

	t.Run("publish respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := client.PublishLedgerEvent(ctx, NewLedgerEvent(EventIncomeCreated, "u1", 1, 100, 100, "Salary"))
		if err != context.Canceled {
			t.Errorf("PublishLedgerEvent() should return context.Canceled, got: %v", err)
		}
	})

	t.Run("close without connection", func(t *testing.T) {
		if err := client.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
}

func TestNewLedgerEvent(t *testing.T) {
	ev := NewLedgerEvent(EventIncomeUpdated, "u1", 42, 1500, -500, "Salary")

	if ev.Type != EventIncomeUpdated || ev.UserID != "u1" || ev.EntryID != 42 {
		t.Errorf("unexpected event identity: %+v", ev)
	}
	if ev.AmountCents != 1500 || ev.DeltaCents != -500 {
		t.Errorf("unexpected amounts: %+v", ev)
	}
	if ev.OccurredAt.IsZero() || time.Since(ev.OccurredAt) > time.Second {
		t.Error("OccurredAt should be recent")
	}
}

func TestLedgerEvent_JSON(t *testing.T) {
	ev := &LedgerEvent{
		Type:        EventExpenseDeleted,
		UserID:      "u7",
		EntryID:     9,
		AmountCents: 250,
		DeltaCents:  -250,
		OccurredAt:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := ev.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := LedgerEventFromJSON(data)
	if err != nil {
		t.Fatalf("LedgerEventFromJSON() error = %v", err)
	}
	if *parsed != *ev {
		t.Errorf("round trip = %+v, want %+v", parsed, ev)
	}

	if _, err := LedgerEventFromJSON([]byte(`{"entry_id": "nope"}`)); err == nil {
		t.Error("LedgerEventFromJSON() should fail with invalid JSON")
	}
}
