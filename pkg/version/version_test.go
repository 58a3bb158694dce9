package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildInfoIsSet(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, BuildTime)
	if GitCommit != "unknown" {
		assert.GreaterOrEqual(t, len(GitCommit), 7, "git commit %q should be a hash", GitCommit)
	}
}
