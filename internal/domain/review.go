package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	MinRating = 1
	MaxRating = 5
)

// Review is a star rating left by a user on a perfume
type Review struct {
	ID         uuid.UUID `json:"id" db:"id"`
	PerfumeID  uuid.UUID `json:"perfume_id" db:"perfume_id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	Rating     int       `json:"rating" db:"rating"`
	Comment    *string   `json:"comment" db:"comment"`
	AuthorName *string   `json:"author_name,omitempty" db:"full_name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ReviewStats contains aggregate review statistics for a perfume
type ReviewStats struct {
	AverageRating float64 `json:"average_rating"`
	ReviewCount   int     `json:"review_count"`
}

// Rounded returns the average rating rounded to one decimal
func (s ReviewStats) Rounded() float64 {
	return math.Round(s.AverageRating*10) / 10
}

// AnonymousAuthor is shown for reviews whose author has no display name
const AnonymousAuthor = "Usuário"

// Author returns the display name of the reviewer
func (r *Review) Author() string {
	if r.AuthorName != nil && *r.AuthorName != "" {
		return *r.AuthorName
	}
	return AnonymousAuthor
}
