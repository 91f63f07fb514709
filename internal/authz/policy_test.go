package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campushq/campus-admin-api/internal/models"
)

func TestCan(t *testing.T) {
	owner := Subject{ActorID: "u-1", OwnerID: "u-1"}
	notOwner := Subject{ActorID: "u-2", OwnerID: "u-1"}
	creator := Subject{ActorID: "u-1", CreatorID: "u-1"}
	notCreator := Subject{ActorID: "u-2", CreatorID: "u-1"}

	cases := []struct {
		name       string
		role       models.UserRole
		capability Capability
		subject    Subject
		want       bool
	}{
		{"admin decides", models.RoleAdmin, ReservationDecide, notOwner, true},
		{"it staff decides", models.RoleITStaff, ReservationDecide, notOwner, true},
		{"lecturer cannot decide", models.RoleLecturer, ReservationDecide, notOwner, false},
		{"owner cannot decide own", models.RoleStudent, ReservationDecide, owner, false},

		{"owner cancels", models.RoleStudent, ReservationCancel, owner, true},
		{"non-owner cannot cancel", models.RoleStudent, ReservationCancel, notOwner, false},
		{"staff cancels any", models.RoleITStaff, ReservationCancel, notOwner, true},

		{"lecturer creates chat", models.RoleLecturer, ChatCreate, Subject{ActorID: "u-1"}, true},
		{"student cannot create chat", models.RoleStudent, ChatCreate, Subject{ActorID: "u-1"}, false},

		{"creator deletes chat", models.RoleLecturer, ChatDelete, creator, true},
		{"non-creator lecturer cannot", models.RoleLecturer, ChatDelete, notCreator, false},
		{"admin deletes any chat", models.RoleAdmin, ChatDelete, notCreator, true},

		{"staff sees all chats", models.RoleITStaff, ChatViewAll, Subject{ActorID: "u-1"}, true},
		{"lecturer does not see all", models.RoleLecturer, ChatViewAll, Subject{ActorID: "u-1"}, false},

		{"author deletes own message", models.RoleStudent, MessageDelete, owner, true},
		{"chat creator deletes message", models.RoleLecturer, MessageDelete, Subject{ActorID: "u-1", OwnerID: "u-9", CreatorID: "u-1"}, true},
		{"member cannot delete others", models.RoleStudent, MessageDelete, Subject{ActorID: "u-2", OwnerID: "u-9", CreatorID: "u-1"}, false},

		{"only admin manages users", models.RoleAdmin, UserManage, Subject{ActorID: "u-1"}, true},
		{"it staff cannot manage users", models.RoleITStaff, UserManage, Subject{ActorID: "u-1"}, false},

		{"unknown capability denies", models.RoleAdmin, Capability("bogus"), Subject{ActorID: "u-1"}, false},
		{"empty actor never owns", models.RoleStudent, ReservationCancel, Subject{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Can(tc.role, tc.capability, tc.subject))
		})
	}
}
