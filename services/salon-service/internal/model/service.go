package model

// Service is an entry of the salon's catalogue.
type Service struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	DurationMin int     `json:"duration_min"`
	Price       float64 `json:"price"`
	Active      bool    `json:"active"`
}
