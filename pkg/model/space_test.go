package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyenginedb/skyengine/pkg/types"
)

func TestSpaceAddRemoveModel(t *testing.T) {
	s := NewSpace(types.NewUUID(), "sp1", nil)
	assert.Equal(t, 0, s.ModelCount())

	s.AddModel("m1")
	s.AddModel("m2")
	assert.Equal(t, 2, s.ModelCount())
	assert.ElementsMatch(t, []string{"m1", "m2"}, s.ModelNames())

	s.RemoveModel("m1")
	assert.Equal(t, 1, s.ModelCount())
	assert.Equal(t, []string{"m2"}, s.ModelNames())
}

// TestSpaceApplyEnvPatchNullClears exercises the ALTER SPACE merge rule
// (spec §4.6): a null value for a key clears it, anything else sets it.
func TestSpaceApplyEnvPatchNullClears(t *testing.T) {
	s := NewSpace(types.NewUUID(), "sp1", map[string]types.Datacell{
		"env": types.NewStr("prod"),
	})

	s.ApplyEnvPatch(map[string]types.Datacell{
		"env":    types.NewStr("staging"),
		"region": types.NewStr("us-east"),
	})
	assert.True(t, s.Props["env"].Equal(types.NewStr("staging")))
	assert.True(t, s.Props["region"].Equal(types.NewStr("us-east")))

	s.ApplyEnvPatch(map[string]types.Datacell{
		"region": types.NewNull(types.TagStr),
	})
	_, ok := s.Props["region"]
	assert.False(t, ok, "a null patch value must clear the key")
	assert.True(t, s.Props["env"].Equal(types.NewStr("staging")), "keys absent from the patch are untouched")
}

func TestGlobalNSIndexesSpacesAndModelsIndependently(t *testing.T) {
	ns := NewGlobalNS()

	sp := NewSpace(types.NewUUID(), "sp1", nil)
	require.True(t, ns.IdxSpaces.Insert("sp1", sp))

	m := newTestModel()
	key := ModelKey{Space: "sp1", Name: "m1"}
	require.True(t, ns.IdxModels.Insert(key, m))

	spRef := ns.IdxSpaces.Get("sp1")
	require.True(t, spRef.Found)
	assert.Same(t, sp, spRef.Value)

	mRef := ns.IdxModels.Get(key)
	require.True(t, mRef.Found)
	assert.Same(t, m, mRef.Value)

	// A model keyed under a different space name must not collide even with
	// the same model name.
	otherKey := ModelKey{Space: "sp2", Name: "m1"}
	otherRef := ns.IdxModels.Get(otherKey)
	assert.False(t, otherRef.Found)
}
