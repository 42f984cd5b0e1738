package core

import "time"

type (
	User struct {
		Subject   string    `json:"subject"`
		Login     string    `json:"login"`
		AvatarURL string    `json:"avatarUrl"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
	}
)
