package domain

import (
	"time"
)

// Session is one billable work segment of a user. A closed session can be
// reopened, in which case it keeps its ID and its original LoginTime.
type Session struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	LoginTime  time.Time  `json:"login_time"`
	Open       bool       `json:"is_logged_in"`
	LogoutTime *time.Time `json:"logout_time"`
}

// IsOpen returns true if the session is currently billable.
func (s *Session) IsOpen() bool {
	return s.Open && s.LogoutTime == nil
}

// PaymentSummary is the final figure shown to the admin after a logout.
// It is not persisted.
type PaymentSummary struct {
	SessionID  string    `json:"session_id"`
	Username   string    `json:"username"`
	Duration   string    `json:"duration"`
	Payment    int64     `json:"total_payment"`
	LoginTime  time.Time `json:"login_time"`
	LogoutTime time.Time `json:"logout_time"`
}
