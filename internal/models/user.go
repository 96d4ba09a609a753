package models

import (
	"fmt"
	"time"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Credentials is the username/password pair used for both registration and login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (u *User) DisplayName() string {
	return fmt.Sprintf("%s [%d]", u.Username, u.ID)
}
