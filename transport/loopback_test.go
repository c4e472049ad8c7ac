package transport

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/courier/errs"
	"github.com/arloliu/courier/format"
)

type collector struct {
	mu    sync.Mutex
	from  []string
	parts []Part
}

func (c *collector) receive(_ context.Context, from string, p Part) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.from = append(c.from, from)
	c.parts = append(c.parts, p)

	return nil
}

func TestLoopback_Send(t *testing.T) {
	net, err := NewNetwork(WithLimits(Limits{MaxParts: 4, PartSize: 8}))
	require.NoError(t, err)

	var got collector
	net.Listen("b", got.receive)
	a := net.Transport("a")
	require.Equal(t, format.TransportLoopback, a.Kind())
	require.Equal(t, 8, a.Limits().PartSize)
	require.Equal(t, "a", a.Address())

	parts, err := Split([]byte("hello loopback"), 3, a.Limits())
	require.NoError(t, err)
	for _, p := range parts {
		require.NoError(t, a.Send(context.Background(), "b", p))
	}

	require.Equal(t, parts, got.parts)
	require.Equal(t, []string{"a", "a"}, got.from)

	require.ErrorIs(t, a.Send(context.Background(), "nobody", parts[0]), errs.ErrTransportFailure)

	big := Part{SenderID: 1, Index: 1, Total: 1, Body: make([]byte, 9)}
	require.ErrorIs(t, a.Send(context.Background(), "b", big), errs.ErrTransportFailure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, a.Send(ctx, "b", parts[0]), errs.ErrTransportFailure)

	net.Remove("b")
	require.ErrorIs(t, a.Send(context.Background(), "b", parts[0]), errs.ErrTransportFailure)
}

func TestLoopback_Interceptor(t *testing.T) {
	var held []Part
	net, err := NewNetwork(WithInterceptor(func(_, _ string, p Part) []Part {
		switch p.Index {
		case 1:
			held = append(held, p)
			return nil
		case 2:
			return []Part{p, p}
		default:
			return []Part{p}
		}
	}))
	require.NoError(t, err)

	var got collector
	net.Listen("b", got.receive)
	a := net.Transport("a")

	data := make([]byte, 300)
	parts, err := Split(data, 9, a.Limits())
	require.NoError(t, err)
	require.Len(t, parts, 3)
	for _, p := range parts {
		require.NoError(t, a.Send(context.Background(), "b", p))
	}

	require.Len(t, got.parts, 3)
	require.Equal(t, []int{2, 2, 3}, []int{got.parts[0].Index, got.parts[1].Index, got.parts[2].Index})

	require.Len(t, held, 1)
	require.NoError(t, net.Deliver(context.Background(), "a", "b", held[0]))
	require.Equal(t, 1, got.parts[3].Index)

	net.SetInterceptor(nil)
	require.NoError(t, a.Send(context.Background(), "b", parts[0]))
	require.Len(t, got.parts, 5)
}

func TestNewNetwork_InvalidLimits(t *testing.T) {
	_, err := NewNetwork(WithLimits(Limits{MaxParts: 0, PartSize: 1}))
	require.ErrorIs(t, err, errs.ErrValueOutOfRange)
}
