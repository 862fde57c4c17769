// Package notify is the outbound notification boundary. Delivery itself is
// an external concern; the default implementation just logs.
package notify

import "log"

// Notifier announces offer lifecycle events to interested parties
type Notifier interface {
	OfferDeclined(offerID, buyerEmail, reason string)
	OfferCountered(offerID, buyerEmail, terms string)
	OfferAccepted(offerID, buyerEmail string)
}

// LogNotifier writes notifications to the process log
type LogNotifier struct{}

// NewLogNotifier creates the default log-backed notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) OfferDeclined(offerID, buyerEmail, reason string) {
	log.Printf("📣 Notify %s: offer %s declined (%s)", buyerEmail, offerID, reason)
}

func (n *LogNotifier) OfferCountered(offerID, buyerEmail, terms string) {
	log.Printf("📣 Notify %s: offer %s countered (%s)", buyerEmail, offerID, terms)
}

func (n *LogNotifier) OfferAccepted(offerID, buyerEmail string) {
	log.Printf("📣 Notify %s: offer %s accepted", buyerEmail, offerID)
}
