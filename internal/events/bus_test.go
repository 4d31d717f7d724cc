package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventTradeSettled, 10)
	defer unsub()

	bus.Publish(EventTradeSettled, TradeSettled{TradeID: "t1", Result: "win"})

	select {
	case msg := <-ch:
		ev, ok := msg.(TradeSettled)
		require.True(t, ok)
		assert.Equal(t, "t1", ev.TradeID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	_, unsub := bus.Subscribe(EventBalanceUpdated, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			bus.Publish(EventBalanceUpdated, BalanceUpdated{WalletAddress: "0xabc"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventDepositUpdated, 1)
	unsub()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe reaches nobody and does not panic.
	bus.Publish(EventDepositUpdated, ReviewUpdated{ID: "d1"})
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := NewBus()
	settled, unsub1 := bus.Subscribe(EventTradeSettled, 1)
	defer unsub1()
	balances, unsub2 := bus.Subscribe(EventBalanceUpdated, 1)
	defer unsub2()

	bus.Publish(EventBalanceUpdated, BalanceUpdated{WalletAddress: "0xabc"})

	select {
	case <-balances:
	case <-time.After(time.Second):
		t.Fatal("balance event not delivered")
	}
	select {
	case <-settled:
		t.Fatal("settled subscriber received a balance event")
	default:
	}
}
