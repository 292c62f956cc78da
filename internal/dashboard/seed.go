package dashboard

import (
	"time"

	"github.com/gosimple/slug"
)

type seedRow struct {
	name, company, phone, email, country string
	status                               CustomerStatus
}

var seedRows = []seedRow{
	{"Jane Cooper", "Microsoft", "(225) 555-0118", "jane@microsoft.com", "United States", StatusActive},
	{"Floyd Miles", "Yahoo", "(205) 555-0100", "floyd@yahoo.com", "Kiribati", StatusInactive},
	{"Ronald Richards", "Adobe", "(302) 555-0107", "ronald@adobe.com", "Israel", StatusInactive},
	{"Marvin McKinney", "Tesla", "(252) 555-0126", "marvin@tesla.com", "Iran", StatusActive},
	{"Jerome Bell", "Google", "(629) 555-0129", "jerome@google.com", "Réunion", StatusActive},
	{"Kathryn Murphy", "Microsoft", "(406) 555-0120", "kathryn@microsoft.com", "Curaçao", StatusActive},
	{"Jacob Jones", "Yahoo", "(208) 555-0112", "jacob@yahoo.com", "Brazil", StatusActive},
	{"Kristin Watson", "Facebook", "(704) 555-0127", "kristin@facebook.com", "Åland Islands", StatusInactive},
}

// SeedCustomers builds the starter directory relative to now. Earlier rows are
// newer; active customers were seen within the last minutes, inactive ones weeks ago.
func SeedCustomers(now time.Time) []Customer {
	out := make([]Customer, 0, len(seedRows))
	for i, row := range seedRows {
		c := Customer{
			Name:    row.name,
			Handle:  slug.Make(row.name),
			Company: row.company,
			Phone:   row.phone,
			Email:   row.email,
			Country: row.country,
			Status:  row.status,
		}
		c.CreatedAt = now.Add(-time.Duration(i+1) * 24 * time.Hour)
		c.UpdatedAt = c.CreatedAt
		if row.status == StatusActive {
			c.LastActiveAt = now.Add(-time.Duration(i+1) * time.Minute)
		} else {
			c.LastActiveAt = now.Add(-time.Duration(i+1) * 7 * 24 * time.Hour)
		}
		out = append(out, c)
	}
	return out
}
