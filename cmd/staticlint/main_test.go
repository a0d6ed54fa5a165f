package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticcheckAnalyzers(t *testing.T) {
	selected := staticcheckAnalyzers([]string{"SA1000", "SA4010"})
	require.Len(t, selected, 2)
	assert.ElementsMatch(t, []string{"SA1000", "SA4010"}, []string{selected[0].Name, selected[1].Name})

	defaults := staticcheckAnalyzers(nil)
	require.NotEmpty(t, defaults)
	for _, analyzer := range defaults {
		assert.True(t, strings.HasPrefix(analyzer.Name, "SA"), analyzer.Name)
	}
}
