package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	defer func(b, c string) { BuildNumber, GitCommit = b, c }(BuildNumber, GitCommit)

	BuildNumber, GitCommit = "7", ""
	assert.Equal(t, "screencast 7", String())

	GitCommit = "unknown"
	assert.Equal(t, Info{Build: "7"}, Current())

	GitCommit = "abc123"
	assert.Equal(t, "screencast 7 (abc123)", String())
}
