package model

import "github.com/google/uuid"

type NotificationSettings struct {
	OnSessionCreate   bool `db:"notify_on_create" json:"on_session_create"`
	OnSessionJoin     bool `db:"notify_on_join" json:"on_session_join"`
	OnSessionActivate bool `db:"notify_on_activate" json:"on_session_activate"`
	OnSessionStart    bool `db:"notify_on_start" json:"on_session_start"`
}

type Guild struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	Slug                 string    `db:"slug" json:"slug"`
	Name                 string    `db:"name" json:"name"`
	WebhookURL           *string   `db:"webhook_url" json:"webhook_url,omitempty"`
	NotificationSettings `json:"notification_settings"`
}

type GuildRole string

const (
	RoleOwner  GuildRole = "owner"
	RoleAdmin  GuildRole = "admin"
	RoleMember GuildRole = "member"
)

func (r GuildRole) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}
