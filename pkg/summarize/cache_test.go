package summarize

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRedisCacheGet(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	want := Summary{Title: "cached", RelevanceScore: 7}
	data, err := json.Marshal(want)
	require.NoError(t, err)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "autodigest:summary:m:abc")).
		Return(mock.Result(mock.RedisString(string(data))))

	cache := newRedisCache(c, 0, "")
	got, err := cache.Get(context.Background(), "m:abc")
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Title)
	assert.Equal(t, 7.0, got.RelevanceScore)
}

func TestRedisCacheGetMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "p:k")).
		Return(mock.Result(mock.RedisNil()))

	_, err := newRedisCache(c, time.Hour, "p:").Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheSetUsesTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return len(cmd) == 5 && cmd[0] == "SET" && cmd[1] == "p:k" && cmd[3] == "EX" && cmd[4] == "3600"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	err := newRedisCache(c, time.Hour, "p:").Set(context.Background(), "k", &Summary{Title: "t"})
	require.NoError(t, err)
}

func TestNewRedisCacheRequiresAddr(t *testing.T) {
	_, err := NewRedisCache(RedisConfig{})
	require.Error(t, err)
}
