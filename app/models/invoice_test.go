package models

import "testing"

func TestIsTerminalInvoiceStatus(t *testing.T) {
	for _, s := range TerminalInvoiceStatuses() {
		if !IsTerminalInvoiceStatus(s) {
			t.Fatalf("%q should be terminal", s)
		}
	}
	for _, s := range []string{InvoiceStatusPending, InvoiceStatusOther, ""} {
		if IsTerminalInvoiceStatus(s) {
			t.Fatalf("%q should not be terminal", s)
		}
	}
}
