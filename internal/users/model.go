package users

import "time"

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PictureURL   string    `json:"pictureUrl,omitempty"`
	Provider     string    `json:"provider"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
