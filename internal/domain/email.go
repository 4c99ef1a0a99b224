package domain

// Email is a rendered plain-text message ready for delivery.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
