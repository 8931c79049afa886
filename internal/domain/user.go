package domain

import "time"

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// InsertUser es el subconjunto de campos aceptado en el registro.
type InsertUser struct {
	Username string
	Password string
}
