package domain

import "time"

// NotificationType enumerates in-app notification kinds.
type NotificationType string

const (
	NotificationAssignment NotificationType = "assignment"
)

// Notification is an in-app feed entry created by the dispatcher. The data
// map carries a denormalized snapshot of the ticket and property fields the
// feed needs to render without further reads.
type Notification struct {
	ID        string
	UserID    string
	UserRole  string
	Type      NotificationType
	Data      map[string]any
	Read      bool
	CreatedAt time.Time
}

// ToFields encodes the notification for an append-only store write.
func (n *Notification) ToFields() map[string]any {
	return map[string]any{
		"userId":    n.UserID,
		"userRole":  n.UserRole,
		"type":      string(n.Type),
		"data":      n.Data,
		"read":      n.Read,
		"createdAt": n.CreatedAt,
	}
}

// NotificationFromFields decodes a raw notification document.
func NotificationFromFields(id string, fields map[string]any) (*Notification, error) {
	if fields == nil {
		return nil, missingField("userId")
	}
	notification := &Notification{ID: id}

	var err error
	if notification.UserID, err = fieldString(fields, "userId"); err != nil {
		return nil, err
	}
	role, err := fieldOptString(fields, "userRole")
	if err != nil {
		return nil, err
	}
	if role != nil {
		notification.UserRole = *role
	}
	typeStr, err := fieldString(fields, "type")
	if err != nil {
		return nil, err
	}
	notification.Type = NotificationType(typeStr)
	if notification.Read, err = fieldBool(fields, "read", false); err != nil {
		return nil, err
	}
	if data, ok := fields["data"].(map[string]any); ok {
		notification.Data = data
	}
	createdAt, err := fieldOptTime(fields, "createdAt")
	if err != nil {
		return nil, err
	}
	if createdAt != nil {
		notification.CreatedAt = *createdAt
	}
	return notification, nil
}

// FcmToken maps a user to one registered push device token. A user may hold
// several.
type FcmToken struct {
	ID        string
	UserID    string
	Token     string
	CreatedAt time.Time
}

// ToFields encodes the token registration for a store write.
func (t *FcmToken) ToFields() map[string]any {
	return map[string]any{
		"userId":    t.UserID,
		"token":     t.Token,
		"createdAt": t.CreatedAt,
	}
}

// FcmTokenFromFields decodes a raw token document.
func FcmTokenFromFields(id string, fields map[string]any) (*FcmToken, error) {
	if fields == nil {
		return nil, missingField("token")
	}
	token := &FcmToken{ID: id}

	var err error
	if token.UserID, err = fieldString(fields, "userId"); err != nil {
		return nil, err
	}
	if token.Token, err = fieldString(fields, "token"); err != nil {
		return nil, err
	}
	createdAt, err := fieldOptTime(fields, "createdAt")
	if err != nil {
		return nil, err
	}
	if createdAt != nil {
		token.CreatedAt = *createdAt
	}
	return token, nil
}
