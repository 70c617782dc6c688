package rooms

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/collabhq/realtime-go/broker/memorybroker"
	"github.com/collabhq/realtime-go/capabilities"
	"github.com/collabhq/realtime-go/sessions/conntest"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := New(memorybroker.New(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSendTimeout(time.Second),
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = m.Run(ctx) }()
	// Let the fanout subscription register before tests publish.
	time.Sleep(100 * time.Millisecond)
	return m
}

func TestPublishReachesGroupMembers(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	in := conntest.New("c1")
	out := conntest.New("c2")
	m.Join("c1", in, []string{ProjectGroup("p1")})
	m.Join("c2", out, []string{ProjectGroup("p2")})

	id, err := m.Publish(ctx, ProjectGroup("p1"), "task:created", []byte(`{"taskId":"t1"}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id == "" {
		t.Fatalf("publish must return the envelope id")
	}

	frame := in.WaitFrame(t, "task:created", 2*time.Second)
	if string(frame.Payload) != `{"taskId":"t1"}` {
		t.Fatalf("payload mismatch: %s", frame.Payload)
	}
	out.ExpectNone(t, "task:created", 200*time.Millisecond)
}

func TestPublishFansOutToAllMembers(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a := conntest.New("a")
	b := conntest.New("b")
	m.Join("a", a, []string{ProjectGroup("p1")})
	m.Join("b", b, []string{ProjectGroup("p1")})

	if _, err := m.Publish(ctx, ProjectGroup("p1"), "ping", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	a.WaitFrame(t, "ping", 2*time.Second)
	b.WaitFrame(t, "ping", 2*time.Second)
}

func TestSubgroupsSeeOnlyTheirTraffic(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	editor := conntest.New("editor")
	viewer := conntest.New("viewer")
	m.Join("editor", editor, []string{ProjectGroup("p1"), EditorsGroup("p1")})
	m.Join("viewer", viewer, []string{ProjectGroup("p1")})

	if _, err := m.Publish(ctx, EditorsGroup("p1"), "task:locked", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	editor.WaitFrame(t, "task:locked", 2*time.Second)
	viewer.ExpectNone(t, "task:locked", 200*time.Millisecond)
}

func TestReassignSwapsMembershipAtomically(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	c := conntest.New("c")
	m.Join("c", c, []string{ProjectGroup("p1"), EditorsGroup("p1")})

	m.Reassign("c", c, []string{ProjectGroup("p1"), ManagersGroup("p1")})

	want := []string{ProjectGroup("p1"), ManagersGroup("p1")}
	if got := m.Groups("c"); !reflect.DeepEqual(got, want) {
		t.Fatalf("groups after reassign: got %v want %v", got, want)
	}

	if _, err := m.Publish(ctx, ManagersGroup("p1"), "member:role:changed", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	c.WaitFrame(t, "member:role:changed", 2*time.Second)

	if _, err := m.Publish(ctx, EditorsGroup("p1"), "task:locked", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	c.ExpectNone(t, "task:locked", 200*time.Millisecond)
}

func TestLeaveAllRemovesEveryMembership(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	c := conntest.New("c")
	m.Join("c", c, GroupsFor("p1", "u1", capabilities.Resolve(capabilities.RoleOwner, capabilities.FeatureFlags{})))

	m.LeaveAll("c")

	if got := m.Groups("c"); len(got) != 0 {
		t.Fatalf("want no memberships after LeaveAll, got %v", got)
	}
	if got := m.Members(ProjectGroup("p1")); len(got) != 0 {
		t.Fatalf("want empty project group, got %v", got)
	}

	if _, err := m.Publish(ctx, ProjectGroup("p1"), "ping", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	c.ExpectNone(t, "ping", 200*time.Millisecond)
}

func TestDeliveryContinuesPastFailedConn(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	dead := conntest.New("dead")
	_ = dead.Close("gone")
	live := conntest.New("live")
	m.Join("dead", dead, []string{ProjectGroup("p1")})
	m.Join("live", live, []string{ProjectGroup("p1")})

	if _, err := m.Publish(ctx, ProjectGroup("p1"), "ping", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	live.WaitFrame(t, "ping", 2*time.Second)
}

func TestMembersSorted(t *testing.T) {
	m := newTestManager(t)

	m.Join("zeta", conntest.New("zeta"), []string{ProjectGroup("p1")})
	m.Join("alpha", conntest.New("alpha"), []string{ProjectGroup("p1")})

	want := []string{"alpha", "zeta"}
	if got := m.Members(ProjectGroup("p1")); !reflect.DeepEqual(got, want) {
		t.Fatalf("members: got %v want %v", got, want)
	}
}

func TestGroupsFor(t *testing.T) {
	cases := []struct {
		name string
		caps capabilities.Set
		want []string
	}{
		{
			name: "view only",
			caps: capabilities.Set{CanView: true},
			want: []string{ProjectGroup("p1"), UserGroup("p1", "u1")},
		},
		{
			name: "editor",
			caps: capabilities.Set{CanView: true, CanEditTasks: true},
			want: []string{ProjectGroup("p1"), UserGroup("p1", "u1"), EditorsGroup("p1")},
		},
		{
			name: "manager with analytics and files",
			caps: capabilities.Set{
				CanView: true, CanEditTasks: true, CanManageMembers: true,
				CanViewAnalytics: true, CanAccessFiles: true,
			},
			want: []string{
				ProjectGroup("p1"), UserGroup("p1", "u1"), EditorsGroup("p1"),
				ManagersGroup("p1"), AnalyticsGroup("p1"), FilesGroup("p1"),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := GroupsFor("p1", "u1", tc.caps)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestOwnerJoinsEverySubgroup(t *testing.T) {
	caps := capabilities.Resolve(capabilities.RoleOwner, capabilities.FeatureFlags{Analytics: true, Files: true})
	got := GroupsFor("p1", "u1", caps)
	if len(got) != 6 {
		t.Fatalf("owner should be in all 6 groups, got %v", got)
	}
}
