package eventbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribe_ReceivesPublishedEvent(t *testing.T) {
	b := New(8)
	_, ch := b.Subscribe()

	_, err := b.Publish(EventScanStart, map[string]string{"project_root": "/x"})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, EventScanStart, ev.Type)
		assert.Equal(t, uint64(1), ev.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	b.Close()
}

func TestPublish_SequenceNumbersMonotonic(t *testing.T) {
	b := New(8)
	_, ch := b.Subscribe()

	for i := 0; i < 3; i++ {
		_, err := b.Publish(EventWaveStart, map[string]int{"wave_num": i})
		require.NoError(t, err)
	}

	var seqs []uint64
	for i := 0; i < 3; i++ {
		ev := <-ch
		seqs = append(seqs, ev.Seq)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
	b.Close()
}

func TestPublish_MultipleSubscribersEachGetEvent(t *testing.T) {
	b := New(8)
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	_, err := b.Publish(EventScanComplete, map[string]int{"files_scanned": 10})
	require.NoError(t, err)

	ev1 := <-ch1
	ev2 := <-ch2
	assert.Equal(t, ev1.Seq, ev2.Seq)
	b.Close()
}

func TestPublish_OverflowDropsOldestAndEmitsEventsDropped(t *testing.T) {
	b := New(1)
	_, ch := b.Subscribe()

	_, err := b.Publish(EventWaveStart, map[string]int{"wave_num": 0})
	require.NoError(t, err)
	_, err = b.Publish(EventWaveStart, map[string]int{"wave_num": 1})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, EventEventsDropped, first.Type)
	var data EventsDroppedData
	require.NoError(t, json.Unmarshal(first.Data, &data))
	assert.Equal(t, 1, data.DroppedCount)
	b.Close()
}

func TestClose_ClosesSubscriberChannels(t *testing.T) {
	b := New(8)
	_, ch := b.Subscribe()
	b.Close()

	_, open := <-ch
	assert.False(t, open)
}

func TestPublish_AfterCloseIsNoop(t *testing.T) {
	b := New(8)
	b.Close()
	ev, err := b.Publish(EventScanStart, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, EventScanStart, ev.Type)
}

func TestUnsubscribe_StopsDeliveryAndClosesChannel(t *testing.T) {
	b := New(8)
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)
	b.Close()
}
