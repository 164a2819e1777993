package llm

// FamilyConfig names which configured model serves each heuristic
// family spec.md section 4.G describes.
type FamilyConfig struct {
	Default string // used when no preference or heuristic matches
	Smart   string // intelligence > 0.7
	Fast    string // speed > 0.7
	Local   string // cost > 0.7
}

// SelectModel implements spec.md section 4.G's model selection: an
// explicit preferred model configured on some provider wins outright;
// otherwise heuristic thresholds on intelligence/speed/cost pick a
// family; the configured default is the final fallback.
func SelectModel(prefs ModelPreferences, available map[string]bool, families FamilyConfig) string {
	excluded := make(map[string]bool, len(prefs.ExcludedModels))
	for _, m := range prefs.ExcludedModels {
		excluded[m] = true
	}

	for _, m := range prefs.PreferredModels {
		if available[m] && !excluded[m] {
			return m
		}
	}

	switch {
	case prefs.Intelligence > 0.7 && families.Smart != "" && !excluded[families.Smart]:
		return families.Smart
	case prefs.Speed > 0.7 && families.Fast != "" && !excluded[families.Fast]:
		return families.Fast
	case prefs.Cost > 0.7 && families.Local != "" && !excluded[families.Local]:
		return families.Local
	default:
		return families.Default
	}
}
