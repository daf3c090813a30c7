package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/vishal065/BookBazaar-masterji/pkg/domain"
)

var orderConfirmationTmpl = template.Must(template.New("order_confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
<h2>Thank you for your order!</h2>
<p>Your order <strong>{{.OrderID}}</strong> has been paid and confirmed.</p>
<table cellpadding="6" style="border-collapse: collapse;">
<tr><th align="left">Book</th><th align="right">Qty</th><th align="right">Price</th><th align="right">Subtotal</th></tr>
{{- range .Lines}}
<tr><td>{{.Title}}</td><td align="right">{{.Quantity}}</td><td align="right">{{.Price}}</td><td align="right">{{.Subtotal}}</td></tr>
{{- end}}
</table>
<p><strong>Total: {{.Total}}</strong></p>
<p>Happy reading,<br>BookBazaar</p>
</body>
</html>
`))

type confirmationLine struct {
	Title    string
	Quantity int
	Price    string
	Subtotal string
}

// OrderConfirmation renders the mail sent once an order is paid.
func OrderConfirmation(to string, order domain.Order, lines []domain.OrderLine) (Message, error) {
	view := struct {
		OrderID string
		Lines   []confirmationLine
		Total   string
	}{
		OrderID: order.ID,
		Total:   order.TotalAmount.StringFixed(2),
	}
	for _, l := range lines {
		title := strings.TrimSpace(l.Title)
		if title == "" {
			title = l.BookID
		}
		view.Lines = append(view.Lines, confirmationLine{
			Title:    title,
			Quantity: l.Quantity,
			Price:    l.Price.StringFixed(2),
			Subtotal: l.Subtotal().StringFixed(2),
		})
	}
	var buf bytes.Buffer
	if err := orderConfirmationTmpl.Execute(&buf, view); err != nil {
		return Message{}, fmt.Errorf("render confirmation: %w", err)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your BookBazaar order %s is confirmed", order.ID),
		HTML:    buf.String(),
		OrderID: order.ID,
	}, nil
}
