// Package capabilities maps project roles and per-project feature flags to the
// fixed capability set that governs what a live collaboration connection may
// do. Resolution is a pure function: identical inputs always produce an
// identical Set, so resolved sets can be compared, cached, and replaced
// wholesale without coordination.
package capabilities

// Capability names one entry of the capability set. The string values are
// stable identifiers used in logs, audit records, and per-action authorization
// checks.
type Capability string

const (
	CapView               Capability = "view"
	CapComment            Capability = "comment"
	CapEditTasks          Capability = "edit-tasks"
	CapCreateTasks        Capability = "create-tasks"
	CapDeleteTasks        Capability = "delete-tasks"
	CapAssignTasks        Capability = "assign-tasks"
	CapManageMembers      Capability = "manage-members"
	CapInviteMembers      Capability = "invite-members"
	CapRemoveMembers      Capability = "remove-members"
	CapChangeRoles        Capability = "change-roles"
	CapDeleteProject      Capability = "delete-project"
	CapModifySettings     Capability = "modify-settings"
	CapAccessFiles        Capability = "access-files"
	CapUploadFiles        Capability = "upload-files"
	CapDeleteFiles        Capability = "delete-files"
	CapViewAnalytics      Capability = "view-analytics"
	CapExportData         Capability = "export-data"
	CapArchiveProject     Capability = "archive-project"
	CapManageIntegrations Capability = "manage-integrations"
	CapManageWebhooks     Capability = "manage-webhooks"
)

// All lists every capability in canonical order. The order matches the field
// order of Set and must not change; (Set).flags relies on it.
var All = []Capability{
	CapView,
	CapComment,
	CapEditTasks,
	CapCreateTasks,
	CapDeleteTasks,
	CapAssignTasks,
	CapManageMembers,
	CapInviteMembers,
	CapRemoveMembers,
	CapChangeRoles,
	CapDeleteProject,
	CapModifySettings,
	CapAccessFiles,
	CapUploadFiles,
	CapDeleteFiles,
	CapViewAnalytics,
	CapExportData,
	CapArchiveProject,
	CapManageIntegrations,
	CapManageWebhooks,
}

// Set is the full named collection of booleans describing what an authorized
// connection may do. It is derived wholesale from (role, feature flags) by
// Resolve and replaced atomically in a session record; individual fields are
// never toggled in place. The JSON field names are part of the wire format of
// the permissions:updated event.
type Set struct {
	CanView               bool `json:"canView"`
	CanComment            bool `json:"canComment"`
	CanEditTasks          bool `json:"canEditTasks"`
	CanCreateTasks        bool `json:"canCreateTasks"`
	CanDeleteTasks        bool `json:"canDeleteTasks"`
	CanAssignTasks        bool `json:"canAssignTasks"`
	CanManageMembers      bool `json:"canManageMembers"`
	CanInviteMembers      bool `json:"canInviteMembers"`
	CanRemoveMembers      bool `json:"canRemoveMembers"`
	CanChangeRoles        bool `json:"canChangeRoles"`
	CanDeleteProject      bool `json:"canDeleteProject"`
	CanModifySettings     bool `json:"canModifySettings"`
	CanAccessFiles        bool `json:"canAccessFiles"`
	CanUploadFiles        bool `json:"canUploadFiles"`
	CanDeleteFiles        bool `json:"canDeleteFiles"`
	CanViewAnalytics      bool `json:"canViewAnalytics"`
	CanExportData         bool `json:"canExportData"`
	CanArchiveProject     bool `json:"canArchiveProject"`
	CanManageIntegrations bool `json:"canManageIntegrations"`
	CanManageWebhooks     bool `json:"canManageWebhooks"`
}

// flags returns the set as a boolean vector in the order of All.
func (s Set) flags() [20]bool {
	return [20]bool{
		s.CanView,
		s.CanComment,
		s.CanEditTasks,
		s.CanCreateTasks,
		s.CanDeleteTasks,
		s.CanAssignTasks,
		s.CanManageMembers,
		s.CanInviteMembers,
		s.CanRemoveMembers,
		s.CanChangeRoles,
		s.CanDeleteProject,
		s.CanModifySettings,
		s.CanAccessFiles,
		s.CanUploadFiles,
		s.CanDeleteFiles,
		s.CanViewAnalytics,
		s.CanExportData,
		s.CanArchiveProject,
		s.CanManageIntegrations,
		s.CanManageWebhooks,
	}
}

// Has reports whether the named capability is granted. Unknown names are never
// granted.
func (s Set) Has(c Capability) bool {
	f := s.flags()
	for i, name := range All {
		if name == c {
			return f[i]
		}
	}
	return false
}

// Contains reports whether s grants every capability granted by other.
func (s Set) Contains(other Set) bool {
	a, b := s.flags(), other.flags()
	for i := range a {
		if b[i] && !a[i] {
			return false
		}
	}
	return true
}

// Granted returns the granted capabilities in canonical order.
func (s Set) Granted() []Capability {
	f := s.flags()
	out := make([]Capability, 0, len(All))
	for i, name := range All {
		if f[i] {
			out = append(out, name)
		}
	}
	return out
}

// IsZero reports whether no capability is granted.
func (s Set) IsZero() bool {
	return s == Set{}
}
