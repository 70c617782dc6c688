package capabilities

// FeatureFlags are the per-project toggles that narrow what the member and
// viewer roles may do. Owner and admin capabilities are not flag-gated; the
// flags restrict otherwise-granted capabilities of the lower roles only, so
// the role superset ordering holds for every flag combination.
type FeatureFlags struct {
	Analytics bool `json:"analytics"`
	Comments  bool `json:"comments"`
	Files     bool `json:"files"`
}

// Resolve maps (role, flags) to the full capability set. It is pure and
// total: identical inputs yield an identical Set, and an unrecognized role
// yields the zero set rather than an error. Callers that care about
// unrecognized roles should check Role.Known and log.
func Resolve(role Role, flags FeatureFlags) Set {
	switch role {
	case RoleOwner:
		return Set{
			CanView:               true,
			CanComment:            true,
			CanEditTasks:          true,
			CanCreateTasks:        true,
			CanDeleteTasks:        true,
			CanAssignTasks:        true,
			CanManageMembers:      true,
			CanInviteMembers:      true,
			CanRemoveMembers:      true,
			CanChangeRoles:        true,
			CanDeleteProject:      true,
			CanModifySettings:     true,
			CanAccessFiles:        true,
			CanUploadFiles:        true,
			CanDeleteFiles:        true,
			CanViewAnalytics:      true,
			CanExportData:         true,
			CanArchiveProject:     true,
			CanManageIntegrations: true,
			CanManageWebhooks:     true,
		}
	case RoleAdmin:
		// Everything but deleting the project itself.
		return Set{
			CanView:               true,
			CanComment:            true,
			CanEditTasks:          true,
			CanCreateTasks:        true,
			CanDeleteTasks:        true,
			CanAssignTasks:        true,
			CanManageMembers:      true,
			CanInviteMembers:      true,
			CanRemoveMembers:      true,
			CanChangeRoles:        true,
			CanModifySettings:     true,
			CanAccessFiles:        true,
			CanUploadFiles:        true,
			CanDeleteFiles:        true,
			CanViewAnalytics:      true,
			CanExportData:         true,
			CanArchiveProject:     true,
			CanManageIntegrations: true,
			CanManageWebhooks:     true,
		}
	case RoleMember:
		return Set{
			CanView:          true,
			CanComment:       flags.Comments,
			CanEditTasks:     true,
			CanCreateTasks:   true,
			CanAssignTasks:   true,
			CanAccessFiles:   flags.Files,
			CanUploadFiles:   flags.Files,
			CanViewAnalytics: flags.Analytics,
		}
	case RoleViewer:
		return Set{
			CanView:        true,
			CanComment:     flags.Comments,
			CanAccessFiles: flags.Files,
		}
	default:
		return Set{}
	}
}
