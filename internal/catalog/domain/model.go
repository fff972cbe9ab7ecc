package domain

import "time"

// Course is the read model of a catalog product. Only the fields checkout
// and publishing need are mapped.
type Course struct {
	ID            string     `json:"id" gorm:"primaryKey;type:text"`
	Title         string     `json:"title" gorm:"type:text;not null"`
	Slug          string     `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	Price         int64      `json:"price" gorm:"not null;default:0"`
	DurationDays  *int       `json:"duration_days,omitempty"`
	DurationLabel *string    `json:"duration_label,omitempty" gorm:"type:text"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"not null"`
}

func (Course) TableName() string { return "courses" }

// User is the identity projection used to enumerate notification recipients.
type User struct {
	ID        string    `gorm:"primaryKey;type:text"`
	Role      string    `gorm:"type:text;not null;default:student"`
	CreatedAt time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// DurationConfig is how long a purchase of the product grants access.
// Either field may be unset.
type DurationConfig struct {
	DurationDays  *int
	DurationLabel *string
}

type PublishResult struct {
	CourseID    string    `json:"course_id"`
	PublishedAt time.Time `json:"published_at"`
	// Notified is false when an earlier publish already notified users.
	Notified   bool `json:"notified"`
	Recipients int  `json:"recipients"`
	Failed     int  `json:"failed"`
}
