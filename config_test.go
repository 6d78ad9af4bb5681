package rawf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_defaultConfig(t *testing.T) {
	c := defaultConfig()
	assert.Equal(t, 10*time.Second, c.timeout)
	assert.NotNil(t, c.transport)
	assert.NotNil(t, c.logger)
	assert.NotNil(t, c.rateLimiterFactory)
}

func Test_WithTransport(t *testing.T) {
	c := &config{}
	WithTransport(fakeTransport{})(c)
	assert.NotNil(t, c.transport)
}

func Test_WithBaseUrl_normalizesTrailingSlash(t *testing.T) {
	c := &config{}
	WithBaseUrl("https://example.test")(c)
	assert.Equal(t, "https://example.test/", c.baseUrl)

	WithBaseUrl("https://example.test/")(c)
	assert.Equal(t, "https://example.test/", c.baseUrl)
}

func Test_WithRelativeRateLimit(t *testing.T) {
	c := &config{}
	WithRelativeRateLimit(true)(c)
	assert.True(t, c.relativeRateLimit)
}

func Test_WithMaxTrackedBuckets(t *testing.T) {
	c := &config{}
	WithMaxTrackedBuckets(500)(c)
	assert.Equal(t, 500, c.maxTrackedBuckets)
}

func Test_WithMajorParams(t *testing.T) {
	c := &config{}
	custom := map[string]bool{"team_id": true}
	WithMajorParams(custom)(c)
	assert.Equal(t, custom, c.majorParams)
}
