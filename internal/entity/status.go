package entity

// PurchaseOrderStatus tracks a purchase order through intake, offer, and payout.
type PurchaseOrderStatus string

const (
	StatusInTransit         PurchaseOrderStatus = "In Transit"
	StatusReceived          PurchaseOrderStatus = "Received"
	StatusOfferSent         PurchaseOrderStatus = "Offer Sent"
	StatusAccepted          PurchaseOrderStatus = "Accepted"
	StatusRejected          PurchaseOrderStatus = "Rejected"
	StatusPaymentProcessing PurchaseOrderStatus = "Payment Processing"
	StatusCompleted         PurchaseOrderStatus = "Completed"
	StatusCancelled         PurchaseOrderStatus = "Cancelled"
)

// OfferStatus tracks the cash offer attached to a purchase order.
type OfferStatus string

const (
	OfferSent      OfferStatus = "Sent"
	OfferResent    OfferStatus = "Resent"
	OfferRejected  OfferStatus = "Rejected"
	OfferAccepted  OfferStatus = "Accepted"
	OfferCancelled OfferStatus = "Cancelled"
)

var validNext = map[PurchaseOrderStatus]map[PurchaseOrderStatus]bool{
	StatusInTransit:         {StatusReceived: true, StatusCancelled: true},
	StatusReceived:          {StatusOfferSent: true, StatusCancelled: true},
	StatusOfferSent:         {StatusAccepted: true, StatusRejected: true, StatusCancelled: true},
	StatusRejected:          {StatusOfferSent: true, StatusCancelled: true},
	StatusAccepted:          {StatusPaymentProcessing: true, StatusCancelled: true},
	StatusPaymentProcessing: {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted:         {},
	StatusCancelled:         {},
}

// CanTransition reports whether a purchase order may move from one status to another.
func CanTransition(from, to PurchaseOrderStatus) bool {
	return validNext[from][to]
}

// Terminal reports whether the status admits no further transitions.
func Terminal(s PurchaseOrderStatus) bool {
	return len(validNext[s]) == 0
}
