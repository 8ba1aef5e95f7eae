package notify

import (
	"fmt"
	"time"

	"github.com/matcornic/hermes/v2"

	"stockwatch/internal/model"
)

// EventView joins a pending transition with the item it concerns, resolved
// once by the dispatcher before templating so templates never need store
// access.
type EventView struct {
	Item  model.Item
	Event model.PendingEvent
}

func hermesConfig() hermes.Hermes {
	return hermes.Hermes{
		Theme: new(hermes.Default),
		Product: hermes.Product{
			Name:      "StockWatch",
			Link:      "https://stockwatch.example.com",
			Copyright: "© StockWatch. All rights reserved.",
		},
	}
}

// RestockTemplate builds the email body for one or more items that have
// transitioned to available (§4.8).
func RestockTemplate(views []EventView) (subject, body, htmlBody string) {
	h := hermesConfig()

	tableData := make([][]hermes.Entry, 0, len(views))
	var names []string
	for _, v := range views {
		names = append(names, v.Item.Name)
		tableData = append(tableData, []hermes.Entry{
			{Key: "Item", Value: v.Item.Name},
			{Key: "URL", Value: v.Item.URL},
			{Key: "Confidence", Value: fmt.Sprintf("%.0f%%", v.Event.Confidence*100)},
			{Key: "Detected", Value: v.Event.DetectedAt.Format("2006-01-02 15:04:05 MST")},
		})
	}

	if len(names) == 1 {
		subject = fmt.Sprintf("Back in stock: %s", names[0])
	} else {
		subject = fmt.Sprintf("Back in stock: %d items", len(names))
	}

	email := hermes.Email{
		Body: hermes.Body{
			Title: "Items Back In Stock",
			Intros: []string{
				fmt.Sprintf("%d item(s) you're watching appear to be available again.", len(views)),
			},
			Table: hermes.Table{
				Data: tableData,
				Columns: hermes.Columns{
					CustomWidth: map[string]string{
						"Item":       "30%",
						"URL":        "30%",
						"Confidence": "20%",
						"Detected":   "20%",
					},
				},
			},
			Outros: []string{
				"Stock can change quickly. Act fast if you want one.",
			},
		},
	}

	htmlBody, _ = h.GenerateHTML(email)
	body, _ = h.GeneratePlainText(email)
	return subject, body, htmlBody
}

// OutageTemplate builds the email body for items that transitioned to
// unavailable.
func OutageTemplate(views []EventView) (subject, body, htmlBody string) {
	h := hermesConfig()

	tableData := make([][]hermes.Entry, 0, len(views))
	var names []string
	for _, v := range views {
		names = append(names, v.Item.Name)
		tableData = append(tableData, []hermes.Entry{
			{Key: "Item", Value: v.Item.Name},
			{Key: "URL", Value: v.Item.URL},
			{Key: "Detected", Value: v.Event.DetectedAt.Format("2006-01-02 15:04:05 MST")},
		})
	}

	if len(names) == 1 {
		subject = fmt.Sprintf("Now out of stock: %s", names[0])
	} else {
		subject = fmt.Sprintf("Now out of stock: %d items", len(names))
	}

	email := hermes.Email{
		Body: hermes.Body{
			Title: "Items Out Of Stock",
			Intros: []string{
				fmt.Sprintf("%d item(s) you're watching went out of stock.", len(views)),
			},
			Table: hermes.Table{
				Data: tableData,
			},
			Outros: []string{
				"We'll notify you again as soon as stock returns.",
			},
		},
	}

	htmlBody, _ = h.GenerateHTML(email)
	body, _ = h.GeneratePlainText(email)
	return subject, body, htmlBody
}

// AdminSummaryTemplate builds a digest of the given transitions for admin
// recipients; the dispatcher uses it for one flush's events of kinds other
// than restock and outage.
func AdminSummaryTemplate(views []EventView, generatedAt time.Time) (subject, body, htmlBody string) {
	h := hermesConfig()

	tableData := make([][]hermes.Entry, 0, len(views))
	for _, v := range views {
		tableData = append(tableData, []hermes.Entry{
			{Key: "Item", Value: v.Item.Name},
			{Key: "From", Value: string(v.Event.FromStatus)},
			{Key: "To", Value: string(v.Event.ToStatus)},
			{Key: "Time", Value: v.Event.DetectedAt.Format("15:04:05 MST")},
		})
	}

	subject = fmt.Sprintf("StockWatch summary: %d transitions (%s)", len(views), generatedAt.Format("2006-01-02"))

	email := hermes.Email{
		Body: hermes.Body{
			Title: "Summary",
			Intros: []string{
				fmt.Sprintf("%d status transition(s) were recorded.", len(views)),
			},
			Table: hermes.Table{
				Data: tableData,
			},
		},
	}

	htmlBody, _ = h.GenerateHTML(email)
	body, _ = h.GeneratePlainText(email)
	return subject, body, htmlBody
}

// AdminHealthTemplate builds an alert for an item whose consecutive error
// count crossed the configured threshold (§4.7).
func AdminHealthTemplate(item model.Item, consecutiveErrors int) (subject, body, htmlBody string) {
	h := hermesConfig()

	subject = fmt.Sprintf("StockWatch health alert: %s failing", item.Name)

	email := hermes.Email{
		Body: hermes.Body{
			Title: "Item Health Alert",
			Intros: []string{
				fmt.Sprintf("**%s** (%s) has failed %d consecutive checks.", item.Name, item.URL, consecutiveErrors),
			},
			Outros: []string{
				"Check whether the site changed layout or started blocking requests.",
			},
		},
	}

	htmlBody, _ = h.GenerateHTML(email)
	body, _ = h.GeneratePlainText(email)
	return subject, body, htmlBody
}
