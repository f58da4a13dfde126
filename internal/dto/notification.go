package dto

import "github.com/noah-isme/registrar-api/internal/models"

// NotificationFeed is the caller's recent notifications plus the unread count.
type NotificationFeed struct {
	Items  []models.Notification
	Unread int
}
