package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journeykit/core"
)

func TestDefaultCoversEveryConditionKind(t *testing.T) {
	c := Default()
	kinds := map[core.ConditionKind]bool{}
	for _, b := range c.Badges() {
		kinds[b.Condition.Kind()] = true
	}
	for _, k := range []core.ConditionKind{
		core.ConditionStreak, core.ConditionFirst, core.ConditionCombo, core.ConditionTime,
		core.ConditionShare, core.ConditionEncourage, core.ConditionMilestone, core.ConditionComeback,
		core.ConditionWeekend, core.ConditionMood, core.ConditionComplete, core.ConditionGraduate,
	} {
		assert.True(t, kinds[k], "no default badge of kind %s", k)
	}

	g, ok := c.Get("graduate")
	require.True(t, ok)
	assert.Equal(t, core.RarityLegendary, g.Rarity)
	assert.Equal(t, core.BadgeKey("first_light"), c.Badges()[0].Key)
}

func TestVisibleHidesSecretBadges(t *testing.T) {
	c := Default()
	assert.Less(t, len(c.Visible()), c.Len())
	for _, b := range c.Visible() {
		assert.False(t, b.Hidden, b.Key)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "badges.json")
	doc := `{"badges":[
	  {"key":"b","name":"B","rarity":"rare","condition":{"type":"share","count":2},"points_reward":5,"sort_order":2},
	  {"key":"a","name":"A","rarity":"common","condition":{"type":"weekend"},"points_reward":1,"sort_order":2}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	assert.Equal(t, core.BadgeKey("a"), c.Badges()[0].Key)
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"duplicate": `
badges:
  - {key: a, rarity: common, condition: {type: share, count: 1}}
  - {key: a, rarity: common, condition: {type: share, count: 2}}
`,
		"unknown kind": `
badges:
  - {key: a, rarity: common, condition: {type: telepathy}}
`,
		"unknown field": `
badges:
  - {key: a, rarity: common, colour: red, condition: {type: share, count: 1}}
`,
		"bad rarity": `
badges:
  - {key: a, rarity: mythic, condition: {type: share, count: 1}}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), FormatYAML)
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte(cases["unknown kind"]), FormatYAML)
	var ie *core.InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, core.BadgeKey("a"), ie.Badge)
}
