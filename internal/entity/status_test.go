package entity

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from PurchaseOrderStatus
		to   PurchaseOrderStatus
		want bool
	}{
		{"in transit to received", StatusInTransit, StatusReceived, true},
		{"in transit to offer sent", StatusInTransit, StatusOfferSent, false},
		{"received to offer sent", StatusReceived, StatusOfferSent, true},
		{"offer sent to accepted", StatusOfferSent, StatusAccepted, true},
		{"offer sent to rejected", StatusOfferSent, StatusRejected, true},
		{"rejected back to offer sent", StatusRejected, StatusOfferSent, true},
		{"accepted to payment processing", StatusAccepted, StatusPaymentProcessing, true},
		{"payment processing to completed", StatusPaymentProcessing, StatusCompleted, true},
		{"completed is terminal", StatusCompleted, StatusCancelled, false},
		{"cancelled is terminal", StatusCancelled, StatusReceived, false},
		{"skip straight to completed", StatusReceived, StatusCompleted, false},
		{"cancel from in transit", StatusInTransit, StatusCancelled, true},
		{"cancel from payment processing", StatusPaymentProcessing, StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransition(%q, %q)=%v want=%v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []PurchaseOrderStatus{StatusCompleted, StatusCancelled} {
		if !Terminal(s) {
			t.Fatalf("Terminal(%q)=false want=true", s)
		}
	}
	for _, s := range []PurchaseOrderStatus{StatusInTransit, StatusReceived, StatusOfferSent, StatusAccepted, StatusRejected, StatusPaymentProcessing} {
		if Terminal(s) {
			t.Fatalf("Terminal(%q)=true want=false", s)
		}
	}
}

func TestOfferActive(t *testing.T) {
	tests := []struct {
		name  string
		order PurchaseOrder
		want  bool
	}{
		{"sent offer", PurchaseOrder{Status: StatusOfferSent, OfferStatus: OfferSent}, true},
		{"resent offer awaits admin", PurchaseOrder{Status: StatusOfferSent, OfferStatus: OfferResent}, false},
		{"rejected offer", PurchaseOrder{Status: StatusOfferSent, OfferStatus: OfferRejected}, false},
		{"accepted order", PurchaseOrder{Status: StatusAccepted, OfferStatus: OfferAccepted}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.order.OfferActive(); got != tt.want {
				t.Fatalf("OfferActive()=%v want=%v", got, tt.want)
			}
		})
	}
}
