package capabilities

import (
	"testing"
)

func allFlagCombos() []FeatureFlags {
	combos := make([]FeatureFlags, 0, 8)
	for _, analytics := range []bool{false, true} {
		for _, comments := range []bool{false, true} {
			for _, files := range []bool{false, true} {
				combos = append(combos, FeatureFlags{Analytics: analytics, Comments: comments, Files: files})
			}
		}
	}
	return combos
}

func TestResolveDeterministic(t *testing.T) {
	for _, role := range Roles {
		for _, flags := range allFlagCombos() {
			a := Resolve(role, flags)
			b := Resolve(role, flags)
			if a != b {
				t.Fatalf("Resolve(%s, %+v) not deterministic: %+v vs %+v", role, flags, a, b)
			}
		}
	}
}

func TestResolveSupersetOrdering(t *testing.T) {
	for _, flags := range allFlagCombos() {
		owner := Resolve(RoleOwner, flags)
		admin := Resolve(RoleAdmin, flags)
		member := Resolve(RoleMember, flags)
		viewer := Resolve(RoleViewer, flags)

		if !owner.Contains(admin) {
			t.Fatalf("flags %+v: owner does not contain admin", flags)
		}
		if !admin.Contains(member) {
			t.Fatalf("flags %+v: admin does not contain member", flags)
		}
		if !member.Contains(viewer) {
			t.Fatalf("flags %+v: member does not contain viewer", flags)
		}
	}
}

func TestResolveUnknownRoleIsZero(t *testing.T) {
	for _, raw := range []string{"", "superuser", "OWNER ", "guest"} {
		role, known := ParseRole(raw)
		if raw == "OWNER " {
			// normalization recognizes case/whitespace variants
			if !known || role != RoleOwner {
				t.Fatalf("ParseRole(%q) = (%q, %v), want (owner, true)", raw, role, known)
			}
			continue
		}
		if known {
			t.Fatalf("ParseRole(%q) unexpectedly known", raw)
		}
		if got := Resolve(role, FeatureFlags{Analytics: true, Comments: true, Files: true}); !got.IsZero() {
			t.Fatalf("Resolve(%q) = %+v, want zero set", role, got)
		}
	}
}

func TestResolveAnalyticsFlagGatesMember(t *testing.T) {
	off := Resolve(RoleMember, FeatureFlags{Analytics: false, Comments: true, Files: true})
	if off.CanViewAnalytics {
		t.Fatal("member with analytics disabled should not have canViewAnalytics")
	}
	on := Resolve(RoleMember, FeatureFlags{Analytics: true, Comments: true, Files: true})
	if !on.CanViewAnalytics {
		t.Fatal("member with analytics enabled should have canViewAnalytics")
	}
}

func TestResolveFlagsDoNotGateAdmins(t *testing.T) {
	caps := Resolve(RoleAdmin, FeatureFlags{})
	if !caps.CanViewAnalytics || !caps.CanComment || !caps.CanAccessFiles {
		t.Fatalf("admin capabilities should not be narrowed by flags: %+v", caps)
	}
	if caps.CanDeleteProject {
		t.Fatal("admin must not hold delete-project")
	}
	if !Resolve(RoleOwner, FeatureFlags{}).CanDeleteProject {
		t.Fatal("owner must hold delete-project")
	}
}

func TestResolveViewerBaseline(t *testing.T) {
	caps := Resolve(RoleViewer, FeatureFlags{})
	if !caps.CanView {
		t.Fatal("viewer must always hold view")
	}
	if got := caps.Granted(); len(got) != 1 {
		t.Fatalf("viewer with all flags off should hold exactly view, got %v", got)
	}
}
