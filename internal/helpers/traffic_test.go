package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"xui-sync/internal/constants"
)

func TestBytesToGB(t *testing.T) {
	assert.Equal(t, 0.0, BytesToGB(0))
	assert.Equal(t, 1.0, BytesToGB(constants.BytesInGB))
	assert.Equal(t, 2.5, BytesToGB(constants.BytesInGB*5/2))
}

func TestGBToBytesRoundTrip(t *testing.T) {
	assert.Equal(t, int64(constants.BytesInGB), GBToBytes(1))
	assert.Equal(t, int64(0), GBToBytes(0))
	assert.Equal(t, 10.0, BytesToGB(GBToBytes(10)))
}

func TestUsagePercent(t *testing.T) {
	assert.Equal(t, 50.0, UsagePercent(50, 100))
	assert.Equal(t, 0.0, UsagePercent(0, 100))
	assert.Equal(t, 150.0, UsagePercent(150, 100), "usage may exceed the limit")
	assert.Equal(t, 0.0, UsagePercent(500, 0), "zero limit means unlimited")
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, IsExpired(0, now), "zero expiry never expires")
	assert.False(t, IsExpired(now.Add(time.Hour).UnixMilli(), now))
	assert.True(t, IsExpired(now.Add(-time.Millisecond).UnixMilli(), now))
	assert.False(t, IsExpired(now.UnixMilli(), now), "exact boundary is not yet expired")
}

func TestEpochMillisConversions(t *testing.T) {
	assert.Equal(t, int64(0), ToEpochMillis(nil))
	assert.Nil(t, FromEpochMillis(0))

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	millis := ToEpochMillis(&at)
	assert.Equal(t, at.UnixMilli(), millis)

	back := FromEpochMillis(millis)
	assert.NotNil(t, back)
	assert.True(t, back.Equal(at))
}

func TestUsageBytes(t *testing.T) {
	assert.Equal(t, int64(300), UsageBytes(100, 200))
	assert.Equal(t, int64(0), UsageBytes(0, 0))
}
