package customer

import "time"

// Customer is the end-user profile owned by a customer-kind user. A customer
// may exist before its owner ever logs in: businesses create stub profiles
// when adding someone by phone.
type Customer struct {
	ID           string
	UserID       string
	Name         string
	Phone        string
	WhatsApp     string
	Email        string
	Address      string
	ProfileImage string
	CreatedAt    time.Time
}
