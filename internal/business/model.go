package business

import "time"

// Business is the merchant profile owned by a business-kind user. The access
// PIN is the linking capability customers type in or scan.
type Business struct {
	ID           string
	UserID       string
	Name         string
	Description  string
	Address      string
	ContactPhone string
	AccessPIN    string
	ProfileImage string
	CreatedAt    time.Time
}
