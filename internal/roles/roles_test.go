package roles

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormaliseKnownAndUnknown(t *testing.T) {
	assert.Equal(t, Defender, Normalise("defender"))
	assert.Equal(t, Generalist, Normalise("bogus-role"))
	assert.Equal(t, Generalist, Normalise(""))
}

func TestDescribeFallsBackToGeneralist(t *testing.T) {
	d := Describe(Role("nonsense"))
	assert.Equal(t, Generalist, d.Role)
	assert.NotEmpty(t, d.Responsibilities)
}

func TestApplyStampsEventAndNormalises(t *testing.T) {
	now := time.Unix(1000, 0)
	s := Apply("scout", "planner", "recon needed", 7, now)
	assert.Equal(t, Scout, s.Role)
	assert.Equal(t, int64(7), s.LastEventID)
	assert.Equal(t, now, s.LastUpdatedAt)

	s2 := Apply("unknown", "planner", "", 8, now)
	assert.Equal(t, Generalist, s2.Role)
}
