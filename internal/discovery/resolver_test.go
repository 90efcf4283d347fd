package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolver(t *testing.T) {
	resolver := NewStaticResolver(map[string][]string{
		"Y.org": {"http://y1:8080", "http://y2:8080"},
	})

	t.Run("解析已知域", func(t *testing.T) {
		endpoints, err := resolver.Resolve(context.Background(), "y.org")
		require.NoError(t, err)
		assert.Equal(t, []string{"http://y1:8080", "http://y2:8080"}, endpoints)
	})

	t.Run("域名大小写不敏感", func(t *testing.T) {
		endpoints, err := resolver.Resolve(context.Background(), "Y.ORG")
		require.NoError(t, err)
		assert.Len(t, endpoints, 2)
	})

	t.Run("未知域返回空列表", func(t *testing.T) {
		endpoints, err := resolver.Resolve(context.Background(), "z.org")
		require.NoError(t, err)
		assert.Empty(t, endpoints)
	})
}

type countingResolver struct {
	calls     int
	endpoints []string
}

func (r *countingResolver) Resolve(context.Context, string) ([]string, error) {
	r.calls++
	return r.endpoints, nil
}

func TestCachedResolver(t *testing.T) {
	t.Run("命中缓存时不再穿透", func(t *testing.T) {
		inner := &countingResolver{endpoints: []string{"http://y:8080"}}
		resolver := NewCachedResolver(inner, time.Minute)

		for i := 0; i < 3; i++ {
			endpoints, err := resolver.Resolve(context.Background(), "y.org")
			require.NoError(t, err)
			assert.Equal(t, []string{"http://y:8080"}, endpoints)
		}
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("空结果不缓存", func(t *testing.T) {
		inner := &countingResolver{}
		resolver := NewCachedResolver(inner, time.Minute)

		for i := 0; i < 3; i++ {
			endpoints, err := resolver.Resolve(context.Background(), "gone.org")
			require.NoError(t, err)
			assert.Empty(t, endpoints)
		}
		assert.Equal(t, 3, inner.calls)
	})
}
