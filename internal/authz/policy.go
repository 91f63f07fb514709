// Package authz centralizes the role/ownership permission policy. Services
// never compare role strings directly; they ask Can with a capability and
// the subject of the operation.
package authz

import "github.com/campushq/campus-admin-api/internal/models"

// Capability names a guarded operation.
type Capability string

const (
	ReservationDecide Capability = "reservation:decide"
	ReservationCancel Capability = "reservation:cancel"
	ReservationDelete Capability = "reservation:delete"
	ChatCreate        Capability = "chat:create"
	ChatDelete        Capability = "chat:delete"
	ChatViewAll       Capability = "chat:view_all"
	ChatManageMembers Capability = "chat:manage_members"
	MessageDelete     Capability = "message:delete"
	FileDelete        Capability = "file:delete"
	ReportExport      Capability = "report:export"
	RosterManage      Capability = "roster:manage"
	ResourceManage    Capability = "resource:manage"
	EventManage       Capability = "event:manage"
	UserManage        Capability = "user:manage"
)

// Subject carries the identity facts a rule may consult. Zero values mean
// "not applicable": a rule that checks OwnerID against an empty string
// never grants by ownership.
type Subject struct {
	ActorID   string
	OwnerID   string // reservation requester, message author, file uploader
	CreatorID string // chat creator
}

type rule struct {
	roles   map[models.UserRole]struct{}
	owner   bool // grant when ActorID == OwnerID
	creator bool // grant when ActorID == CreatorID
}

func roles(rs ...models.UserRole) map[models.UserRole]struct{} {
	m := make(map[models.UserRole]struct{}, len(rs))
	for _, r := range rs {
		m[r] = struct{}{}
	}
	return m
}

var staff = roles(models.RoleAdmin, models.RoleITStaff)

// policy is the single table every permission decision flows through.
var policy = map[Capability]rule{
	ReservationDecide: {roles: staff},
	ReservationCancel: {roles: staff, owner: true},
	ReservationDelete: {roles: staff, owner: true},
	ChatCreate:        {roles: roles(models.RoleAdmin, models.RoleITStaff, models.RoleLecturer)},
	ChatDelete:        {roles: staff, creator: true},
	ChatViewAll:       {roles: staff},
	ChatManageMembers: {roles: staff, creator: true},
	MessageDelete:     {roles: staff, owner: true, creator: true},
	FileDelete:        {roles: staff, creator: true},
	ReportExport:      {roles: staff},
	RosterManage:      {roles: staff},
	ResourceManage:    {roles: staff},
	EventManage:       {roles: staff},
	UserManage:        {roles: roles(models.RoleAdmin)},
}

// Can reports whether an actor with the given role may perform the
// capability on the subject.
func Can(role models.UserRole, capability Capability, subject Subject) bool {
	r, ok := policy[capability]
	if !ok {
		return false
	}
	if _, ok := r.roles[role]; ok {
		return true
	}
	if r.owner && subject.ActorID != "" && subject.ActorID == subject.OwnerID {
		return true
	}
	if r.creator && subject.ActorID != "" && subject.ActorID == subject.CreatorID {
		return true
	}
	return false
}
