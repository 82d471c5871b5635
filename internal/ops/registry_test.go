/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/

package ops

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(GroupRepair, &cobra.Command{Use: "repair <locator>...", Short: "Repair bundles"}))
	require.NoError(t, r.Register(GroupRepair, &cobra.Command{Use: "diagnose <locator>", Short: "Diagnose a bundle"}))
	require.NoError(t, r.Register(GroupSupport, &cobra.Command{Use: "version"}))

	err := r.Register(GroupSupport, &cobra.Command{Use: "repair"})
	assert.Error(t, err, "duplicate names are rejected")

	reg, ok := r.GetCommand("repair")
	require.True(t, ok)
	assert.Equal(t, "Repair bundles", reg.Description)
	assert.Equal(t, GroupRepair, reg.Group)

	var names []string
	for _, c := range r.GetCommandsByGroup(GroupRepair) {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"diagnose", "repair"}, names)
	assert.Len(t, r.GetCommandsByGroup(GroupSupport), 1)
	assert.Empty(t, r.GetCommandsByGroup("other"))
}

func TestGroupTitles(t *testing.T) {
	for _, g := range Groups() {
		assert.NotEqual(t, string(g), g.Title())
	}
	assert.Equal(t, "misc", CommandGroup("misc").Title())
}
