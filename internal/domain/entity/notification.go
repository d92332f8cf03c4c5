package entity

import "time"

// NotificationKind styles a notification.
type NotificationKind string

const (
	NotifyInfo    NotificationKind = ""
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is an ephemeral message shown to the operator.
type Notification struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	Kind      NotificationKind `json:"kind"`
	Visible   bool             `json:"visible"`
	CreatedAt time.Time        `json:"createdAt"`
}
