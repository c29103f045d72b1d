package db

import (
	"time"

	"github.com/google/uuid"
)

// AlertType discriminates the trigger variants. Exactly one applies per
// trigger; fields not relevant to the variant are ignored.
type AlertType string

const (
	AlertTypeInterval AlertType = "INTERVAL"
	AlertTypeDaily    AlertType = "DAILY"
	AlertTypeWeekly   AlertType = "WEEKLY"
	AlertTypeDate     AlertType = "DATE"
)

// Weekday names as stored in trigger.week
const (
	Sunday    = "SUNDAY"
	Monday    = "MONDAY"
	Tuesday   = "TUESDAY"
	Wednesday = "WEDNESDAY"
	Thursday  = "THURSDAY"
	Friday    = "FRIDAY"
	Saturday  = "SATURDAY"
)

// User owns alerts and carries the scheduling context: an IANA timezone and
// the push provider device token. A user without a token cannot receive a
// dispatch; their alerts are skipped, not errored.
type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	PushToken   *string   `json:"push_token,omitempty"`
	LanguageTag string    `json:"language_tag"`
	Timezone    string    `json:"timezone"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Alert is a named reminder. It has exactly one Trigger, created and deleted
// with it.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle"`
	Body      string    `json:"body"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Trigger is the firing rule for one alert.
//
// LastAlert is meaningful for INTERVAL only: the base the next interval is
// measured from, monotonically non-decreasing. LastFired stamps the last
// minute any variant fired and is what prevents a duplicate send when the
// same minute gets evaluated twice.
type Trigger struct {
	AlertID   uuid.UUID  `json:"alert_id"`
	AlertType AlertType  `json:"alert_type"`
	Hours     int        `json:"hours"`
	Minutes   int        `json:"minutes"`
	Week      []string   `json:"week,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
	LastAlert *time.Time `json:"last_alert,omitempty"`
	LastFired *time.Time `json:"last_fired,omitempty"`
}

// AlertCandidate is one row of the eager scan join: an alert with its
// trigger and owning user. A nil Trigger indicates a data-consistency
// problem and is skipped with a warning during evaluation.
type AlertCandidate struct {
	Alert   Alert
	Trigger *Trigger
	User    User
}
