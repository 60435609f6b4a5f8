package model

import "sort"

// Client is a roster entry derived from appointments sharing a phone number.
type Client struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Channel      string `json:"channel"`
	Appointments int    `json:"appointments"`
	LastDate     string `json:"last_date"`
}

// Clients groups appointments by phone. Name and channel come from the first
// appointment seen for a phone. Most recent clients come first.
func Clients(appts []Appointment) []Client {
	byPhone := make(map[string]*Client)
	order := make([]string, 0)
	for _, a := range appts {
		if a.ClientPhone == "" {
			continue
		}
		c, ok := byPhone[a.ClientPhone]
		if !ok {
			channel := a.ClientChannel
			if channel == "" {
				channel = DefaultChannel
			}
			byPhone[a.ClientPhone] = &Client{
				Name:         a.ClientName,
				Phone:        a.ClientPhone,
				Channel:      channel,
				Appointments: 1,
				LastDate:     a.Date,
			}
			order = append(order, a.ClientPhone)
			continue
		}
		c.Appointments++
		if a.Date > c.LastDate {
			c.LastDate = a.Date
		}
	}

	out := make([]Client, 0, len(order))
	for _, phone := range order {
		out = append(out, *byPhone[phone])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastDate > out[j].LastDate })
	return out
}
