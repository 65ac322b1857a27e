package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/irsalhamdi/storefront/core/order"
	"github.com/shopspring/decimal"
)

var invoiceTmpl = template.Must(template.New("invoice").Parse(`INVOICE
Order {{.Order.ID}}
Date  {{.Order.CreatedAt.Format "2006-01-02"}}

Bill to
  {{.Order.FirstName}} {{.Order.LastName}}
  {{.Order.Email}}
  {{.Order.Address}}
  {{.Order.PostalCode}} {{.Order.City}}

{{range .Items}}{{printf "%-40s %4d x %10s = %10s" .ProductName .Quantity (.Price.StringFixed 2) (.Cost.StringFixed 2)}}
{{end}}
{{printf "%-40s %29s" "Total" (.Total.StringFixed 2)}}
Status: {{if .Order.Paid}}PAID{{else}}PENDING PAYMENT{{end}}
`))

type invoiceData struct {
	Order order.Order
	Items []order.Item
	Total decimal.Decimal
}

// Invoice renders a plain-text invoice for ord.
func Invoice(ord order.Order, items []order.Item) ([]byte, error) {
	var buf bytes.Buffer
	data := invoiceData{Order: ord, Items: items, Total: order.TotalCost(items)}
	if err := invoiceTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering invoice of order[%s]: %w", ord.ID, err)
	}
	return buf.Bytes(), nil
}
