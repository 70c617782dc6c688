package rooms

import "github.com/collabhq/realtime-go/capabilities"

// ProjectGroup names the coarse group holding every session in a project.
func ProjectGroup(projectID string) string { return "project:" + projectID }

// EditorsGroup names the subgroup of sessions that may edit tasks.
func EditorsGroup(projectID string) string { return ProjectGroup(projectID) + ":editors" }

// ManagersGroup names the subgroup of sessions that may manage members.
func ManagersGroup(projectID string) string { return ProjectGroup(projectID) + ":managers" }

// AnalyticsGroup names the subgroup of sessions that may view analytics.
func AnalyticsGroup(projectID string) string { return ProjectGroup(projectID) + ":analytics" }

// FilesGroup names the subgroup of sessions that may access files.
func FilesGroup(projectID string) string { return ProjectGroup(projectID) + ":files" }

// UserGroup names the private group holding all of one user's sessions in a
// project. Targeted events such as permission updates go here.
func UserGroup(projectID, userID string) string {
	return ProjectGroup(projectID) + ":user:" + userID
}

// GroupsFor derives the full group set for a session from its capability
// snapshot. The project and user groups are unconditional; the subgroups
// follow the capabilities that gate their traffic.
func GroupsFor(projectID, userID string, caps capabilities.Set) []string {
	groups := []string{ProjectGroup(projectID), UserGroup(projectID, userID)}
	if caps.CanEditTasks {
		groups = append(groups, EditorsGroup(projectID))
	}
	if caps.CanManageMembers {
		groups = append(groups, ManagersGroup(projectID))
	}
	if caps.CanViewAnalytics {
		groups = append(groups, AnalyticsGroup(projectID))
	}
	if caps.CanAccessFiles {
		groups = append(groups, FilesGroup(projectID))
	}
	return groups
}
