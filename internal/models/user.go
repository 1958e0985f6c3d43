package models

import "time"

// User is an end user identified by the stable platform-assigned id.
type User struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Handle      string    `json:"handle"`
	CreatedAt   time.Time `json:"created_at"`
}
