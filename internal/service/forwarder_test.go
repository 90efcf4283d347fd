package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fedmail/backend/internal/domain"
)

type fakeResolver struct {
	endpoints map[string][]string
}

func (r *fakeResolver) Resolve(_ context.Context, domainName string) ([]string, error) {
	return r.endpoints[domainName], nil
}

type fakeCaller struct {
	failEndpoints map[string]bool

	messageCalls []string // 实际命中的端点
	deleteCalls  []string
}

func (c *fakeCaller) ForwardMessage(_ context.Context, _, endpoint string, _ *domain.Message) ([]string, error) {
	c.messageCalls = append(c.messageCalls, endpoint)
	if c.failEndpoints[endpoint] {
		return nil, errors.New("connection refused")
	}
	return nil, nil
}

func (c *fakeCaller) ForwardDelete(_ context.Context, _, endpoint string, _ int64) error {
	c.deleteCalls = append(c.deleteCalls, endpoint)
	if c.failEndpoints[endpoint] {
		return errors.New("connection refused")
	}
	return nil
}

func TestPeerForwarder_ForwardMessage(t *testing.T) {
	msg := &domain.Message{ID: 1, Sender: "a <a@x.org>", Destination: []string{"b@y.org"}}

	t.Run("首个端点成功即停", func(t *testing.T) {
		resolver := &fakeResolver{endpoints: map[string][]string{
			"y.org": {"http://y1:8080", "http://y2:8080"},
		}}
		caller := &fakeCaller{}
		fwd := NewPeerForwarder(resolver, caller, nil, time.Second, zap.NewNop())

		fwd.ForwardMessage([]string{"y.org"}, msg)

		assert.Equal(t, []string{"http://y1:8080"}, caller.messageCalls)
	})

	t.Run("失败后尝试下一个端点", func(t *testing.T) {
		resolver := &fakeResolver{endpoints: map[string][]string{
			"y.org": {"http://y1:8080", "http://y2:8080"},
		}}
		caller := &fakeCaller{failEndpoints: map[string]bool{"http://y1:8080": true}}
		fwd := NewPeerForwarder(resolver, caller, nil, time.Second, zap.NewNop())

		fwd.ForwardMessage([]string{"y.org"}, msg)

		assert.Equal(t, []string{"http://y1:8080", "http://y2:8080"}, caller.messageCalls)
	})

	t.Run("域不可解析时放弃", func(t *testing.T) {
		resolver := &fakeResolver{endpoints: map[string][]string{}}
		caller := &fakeCaller{}
		fwd := NewPeerForwarder(resolver, caller, nil, time.Second, zap.NewNop())

		fwd.ForwardMessage([]string{"unknown.org"}, msg)

		assert.Empty(t, caller.messageCalls)
	})

	t.Run("单域失败不影响其他域", func(t *testing.T) {
		resolver := &fakeResolver{endpoints: map[string][]string{
			"y.org": {"http://y1:8080"},
			"z.org": {"http://z1:8080"},
		}}
		caller := &fakeCaller{failEndpoints: map[string]bool{"http://y1:8080": true}}
		fwd := NewPeerForwarder(resolver, caller, nil, time.Second, zap.NewNop())

		fwd.ForwardMessage([]string{"y.org", "z.org"}, msg)

		assert.Contains(t, caller.messageCalls, "http://z1:8080")
	})
}

func TestPeerForwarder_ForwardDelete(t *testing.T) {
	resolver := &fakeResolver{endpoints: map[string][]string{
		"y.org": {"http://y1:8080", "http://y2:8080"},
	}}
	caller := &fakeCaller{failEndpoints: map[string]bool{"http://y1:8080": true}}
	fwd := NewPeerForwarder(resolver, caller, nil, time.Second, zap.NewNop())

	fwd.ForwardDelete([]string{"y.org"}, 42)

	require.Equal(t, []string{"http://y1:8080", "http://y2:8080"}, caller.deleteCalls)
}
