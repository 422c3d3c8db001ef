package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/streambridge/types"
	"github.com/BaSui01/streambridge/wire"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// exchange 验证一对通道端在两个方向上按序投递
func exchange(t *testing.T, host, consumer Channel) {
	t.Helper()
	ctx := testContext(t)

	var g errgroup.Group
	g.Go(func() error {
		for _, m := range []*wire.Message{
			wire.NewHead("r1", wire.Head{ContentType: "text/plain"}),
			wire.NewBody("r1", []byte("a")),
			wire.NewBody("r1", []byte("b")),
			wire.NewEnd("r1", wire.StatusNormal),
		} {
			if err := host.Send(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})

	var got []string
	for i := 0; i < 4; i++ {
		m, err := consumer.Receive(ctx)
		require.NoError(t, err)
		got = append(got, m.String())
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, []string{"head(r1)", "body(r1, 1 bytes)", "body(r1, 1 bytes)", "end(r1, 0)"}, got)

	require.NoError(t, consumer.Send(ctx, wire.NewCancel("r1")))
	m, err := host.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeCancel, m.Type)
	assert.Equal(t, "r1", m.RequestID)
}

func TestPipe_Exchange(t *testing.T) {
	a, b := NewPipe(8)
	defer a.Close()
	exchange(t, a, b)
}

func TestPipe_CloseDrainsThenFails(t *testing.T) {
	a, b := NewPipe(4)
	ctx := testContext(t)

	require.NoError(t, a.Send(ctx, wire.NewPull("r1")))
	require.NoError(t, b.Close())
	require.NoError(t, a.Close())

	m, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.TypePull, m.Type)

	_, err = b.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Send(ctx, wire.NewPull("r1")), ErrClosed)
}

func TestPipe_RejectsInvalidMessage(t *testing.T) {
	a, _ := NewPipe(1)
	err := a.Send(context.Background(), &wire.Message{Type: wire.TypeBody})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidMessage))
}

func TestPipe_ReceiveHonoursContext(t *testing.T) {
	_, b := NewPipe(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebSocket_Exchange(t *testing.T) {
	logger := zaptest.NewLogger(t)
	accepted := make(chan *WebSocketChannel, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch, err := AcceptWebSocket(w, r, 0, logger)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		accepted <- ch
		// 被劫持的连接不会取消 r.Context()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx := testContext(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	consumer, err := DialWebSocket(ctx, url, 0, logger)
	require.NoError(t, err)
	defer consumer.Close()

	var host *WebSocketChannel
	select {
	case host = <-accepted:
	case <-ctx.Done():
		t.Fatal("server never accepted")
	}
	defer host.Close()

	exchange(t, host, consumer)
}

func TestWebSocket_CloseIsReportedAsClosed(t *testing.T) {
	logger := zaptest.NewLogger(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch, err := AcceptWebSocket(w, r, 0, logger)
		if err != nil {
			return
		}
		_ = ch.Close()
	}))
	defer srv.Close()

	ctx := testContext(t)
	consumer, err := DialWebSocket(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), 0, logger)
	require.NoError(t, err)
	defer consumer.Close()

	_, err = consumer.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRedis_Exchange(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := testContext(t)
	logger := zaptest.NewLogger(t)
	host, err := NewRedisChannel(ctx, client, RedisChannelConfig{Session: "s1", Role: RoleHost}, logger)
	require.NoError(t, err)
	defer host.Close()
	consumer, err := NewRedisChannel(ctx, client, RedisChannelConfig{Session: "s1", Role: RoleConsumer}, logger)
	require.NoError(t, err)
	defer consumer.Close()

	exchange(t, host, consumer)
}

func TestRedis_ConfigValidation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := NewRedisChannel(context.Background(), client, RedisChannelConfig{Session: "s1", Role: "bogus"}, nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))

	_, err = NewRedisChannel(context.Background(), client, RedisChannelConfig{Role: RoleHost}, nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
}

func TestRedis_Topics(t *testing.T) {
	send, recv := RedisChannelConfig{Prefix: "p", Session: "s", Role: RoleHost}.Topics()
	assert.Equal(t, "p:s:to-consumer", send)
	assert.Equal(t, "p:s:to-host", recv)

	send, recv = RedisChannelConfig{Session: "s", Role: RoleConsumer}.Topics()
	assert.Equal(t, "streambridge:s:to-host", send)
	assert.Equal(t, "streambridge:s:to-consumer", recv)
}

func TestRedis_CloseEndsReceive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ch, err := NewRedisChannel(testContext(t), client, RedisChannelConfig{Session: "s2", Role: RoleHost}, nil)
	require.NoError(t, err)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	_, err = ch.Receive(testContext(t))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, ch.Send(testContext(t), wire.NewPull("r1")), ErrClosed)
}
