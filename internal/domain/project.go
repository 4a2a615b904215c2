package domain

import "time"

// Project groups documents, conversations, and syntheses.
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
