package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestVersion tests the version value
func TestVersion(t *testing.T) {
	assert.NotEmpty(t, Version, "Version should not be empty")
	assert.Regexp(t, `^\d+\.\d+\.\d+`, Version, "Version should follow semantic versioning format")
}
