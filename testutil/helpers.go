// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	hostEnd, consumerEnd := testutil.Pipe(t)
//	msg := testutil.Recv(t, consumerEnd)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/BaSui01/streambridge/transport"
	"github.com/BaSui01/streambridge/wire"
)

// DefaultTimeout 单个异步断言的默认等待时长
const DefaultTimeout = 2 * time.Second

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔌 通道辅助
// =============================================================================

// Pipe 返回一对内存通道端（host, consumer），测试结束时关闭
func Pipe(t *testing.T) (transport.Channel, transport.Channel) {
	t.Helper()
	host, consumer := transport.NewPipe(256)
	t.Cleanup(func() {
		_ = host.Close()
		_ = consumer.Close()
	})
	return host, consumer
}

// Recv 在 DefaultTimeout 内接收一条消息，超时则测试失败
func Recv(t *testing.T, ch transport.Channel) *wire.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	msg, err := ch.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	return msg
}

// RecvUntilEnd 接收消息直到收到 id 的 end，返回途中收到的全部消息（含 end）
func RecvUntilEnd(t *testing.T, ch transport.Channel, id string) []*wire.Message {
	t.Helper()
	var out []*wire.Message
	for {
		msg := Recv(t, ch)
		out = append(out, msg)
		if msg.Type == wire.TypeEnd && msg.RequestID == id {
			return out
		}
	}
}

// AssertSilent 断言在 d 内通道上没有新消息
func AssertSilent(t *testing.T, ch transport.Channel, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if msg, err := ch.Receive(ctx); err == nil {
		t.Errorf("unexpected message %s", msg)
	}
}

// Send 发送消息，失败则测试失败
func Send(t *testing.T, ch transport.Channel, msg *wire.Message) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	if err := ch.Send(ctx, msg); err != nil {
		t.Fatalf("send %s: %v", msg, err)
	}
}

// Bodies 提取 body 消息的内容
func Bodies(msgs []*wire.Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Type == wire.TypeBody {
			out = append(out, string(m.Content))
		}
	}
	return out
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertJSONEqual 断言两个值的 JSON 表示相等
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}

	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}

	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual: %s", expectedJSON, actualJSON)
	}
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// AssertEventuallyEqual 断言值最终相等
func AssertEventuallyEqual(t *testing.T, expected any, getter func() any, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var lastValue any

	for time.Now().Before(deadline) {
		lastValue = getter()
		if reflect.DeepEqual(expected, lastValue) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Errorf("value did not become %v within %v, last value: %v", expected, timeout, lastValue)
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return condition()
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
