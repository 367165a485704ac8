package flow

import (
	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// Classify derives the flow from the deep-link ids. A module id wins over a
// skill id.
func Classify(moduleID, skillID string) models.FlowDescriptor {
	switch {
	case moduleID != "":
		return models.FlowModuleDeepLink
	case skillID != "":
		return models.FlowSkillDeepLink
	default:
		return models.FlowFullExperience
	}
}

// NewSessionContext classifies a parameter set. It returns false when the
// set carries no user id, which means nothing may be provisioned.
func NewSessionContext(set *models.ParameterSet, provenance models.Provenance) (models.SessionContext, bool) {
	userID := set.Value(models.ParamUserID)
	if userID == "" {
		return models.SessionContext{}, false
	}
	moduleID := set.Value(models.ParamModuleID)
	skillID := set.Value(models.ParamSkillID)
	locale := set.Value(models.ParamLocale)
	if locale == "" {
		locale = models.DefaultLocale
	}
	return models.SessionContext{
		UserID:     userID,
		ModuleID:   moduleID,
		SkillID:    skillID,
		Locale:     locale,
		Flow:       Classify(moduleID, skillID),
		Params:     set.Clone(),
		Provenance: provenance,
	}, true
}
