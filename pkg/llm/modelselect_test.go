package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectModel_PreferredModelWinsWhenAvailable(t *testing.T) {
	families := FamilyConfig{Default: "default-model", Smart: "smart-model"}
	available := map[string]bool{"preferred-model": true}

	got := SelectModel(ModelPreferences{
		PreferredModels: []string{"preferred-model"},
		Intelligence:    0.9,
	}, available, families)

	assert.Equal(t, "preferred-model", got)
}

func TestSelectModel_SkipsExcludedPreferredModel(t *testing.T) {
	families := FamilyConfig{Default: "default-model"}
	available := map[string]bool{"preferred-model": true}

	got := SelectModel(ModelPreferences{
		PreferredModels: []string{"preferred-model"},
		ExcludedModels:  []string{"preferred-model"},
	}, available, families)

	assert.Equal(t, "default-model", got)
}

func TestSelectModel_IntelligenceThresholdPicksSmartFamily(t *testing.T) {
	families := FamilyConfig{Default: "default-model", Smart: "smart-model"}

	got := SelectModel(ModelPreferences{Intelligence: 0.95}, nil, families)
	assert.Equal(t, "smart-model", got)
}

func TestSelectModel_SpeedThresholdPicksFastFamily(t *testing.T) {
	families := FamilyConfig{Default: "default-model", Fast: "fast-model"}

	got := SelectModel(ModelPreferences{Speed: 0.8}, nil, families)
	assert.Equal(t, "fast-model", got)
}

func TestSelectModel_CostThresholdPicksLocalFamily(t *testing.T) {
	families := FamilyConfig{Default: "default-model", Local: "local-model"}

	got := SelectModel(ModelPreferences{Cost: 0.9}, nil, families)
	assert.Equal(t, "local-model", got)
}

func TestSelectModel_FallsBackToDefault(t *testing.T) {
	families := FamilyConfig{Default: "default-model"}

	got := SelectModel(ModelPreferences{}, nil, families)
	assert.Equal(t, "default-model", got)
}

func TestSelectModel_ExcludedFamilySkipsToDefault(t *testing.T) {
	families := FamilyConfig{Default: "default-model", Smart: "smart-model"}

	got := SelectModel(ModelPreferences{
		Intelligence:   0.95,
		ExcludedModels: []string{"smart-model"},
	}, nil, families)

	assert.Equal(t, "default-model", got)
}
