package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatcher(t *testing.T) {
	d := NewInMemoryDispatcher()
	var seen []string
	d.Subscribe(EventPoolCreated, func(_ context.Context, e Event) error {
		seen = append(seen, "first:"+e.PoolID)
		return errors.New("first failed")
	})
	d.Subscribe(EventPoolCreated, func(_ context.Context, e Event) error {
		seen = append(seen, "second:"+e.PoolID)
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventPoolCreated, PoolID: "p"})
	require.ErrorContains(t, err, "first failed")
	require.Equal(t, []string{"first:p", "second:p"}, seen)

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventPoolFunded}))
}
