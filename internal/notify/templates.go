package notify

import "fmt"

// renderEmail produces the subject and plain-text body for an event.
// An empty subject means no email is defined for this event kind.
func renderEmail(event Event) (subject, body string) {
	name := event.Customer
	if name == "" {
		name = "there"
	}

	switch event.Kind {
	case EventShipped:
		subject = fmt.Sprintf("Your Nature Medica order %s has shipped", event.OrderID)
		courier := event.Courier
		if courier == "" {
			courier = string(event.Provider)
		}
		body = fmt.Sprintf(
			"Hi %s,\n\nGood news! Your order %s is on its way via %s.\n\n"+
				"Tracking ID: %s\n\n"+
				"You can follow your shipment at any time using the tracking id above.\n\n"+
				"Warm regards,\nNature Medica\n",
			name, event.OrderID, courier, event.TrackingID,
		)

	case EventDelivered:
		subject = fmt.Sprintf("Your Nature Medica order %s has been delivered", event.OrderID)
		body = fmt.Sprintf(
			"Hi %s,\n\nYour order %s has been delivered. We hope everything arrived in perfect condition.\n\n"+
				"Warm regards,\nNature Medica\n",
			name, event.OrderID,
		)

	case EventCancelled:
		subject = fmt.Sprintf("Your Nature Medica order %s has been cancelled", event.OrderID)
		body = fmt.Sprintf(
			"Hi %s,\n\nYour order %s has been cancelled.\n\nReason: %s\n\n"+
				"If you did not request this, please reply to this email and we will sort it out.\n\n"+
				"Warm regards,\nNature Medica\n",
			name, event.OrderID, event.Reason,
		)
	}

	return subject, body
}
