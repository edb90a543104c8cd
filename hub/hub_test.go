package hub

import (
	"testing"
)

func testHub() *Hub {
	return New(Config{Asset: "XCP"})
}

func TestChannelCreatesOnFirstAccess(t *testing.T) {
	h := testHub()

	c1 := h.Channel("chan1")
	c2 := h.Channel("chan1")
	if c1 != c2 {
		t.Fatal("Channel returned a different controller for the same key on a second call")
	}

	if len(h.Keys()) != 1 || h.Keys()[0] != "chan1" {
		t.Fatalf("Keys() = %v, want [chan1]", h.Keys())
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	h := testHub()
	h.Channel("chan1")

	blob, err := h.Export("chan1")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	h2 := testHub()
	if err := h2.Import("chan1", blob); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(h2.Keys()) != 1 || h2.Keys()[0] != "chan1" {
		t.Fatalf("Keys() after Import = %v, want [chan1]", h2.Keys())
	}
}

func TestExportUnknownChannel(t *testing.T) {
	h := testHub()
	if _, err := h.Export("nosuchchannel"); err == nil {
		t.Fatal("expected an error exporting an unregistered channel")
	}
}

func TestForgetRemovesChannel(t *testing.T) {
	h := testHub()
	h.Channel("chan1")
	h.Forget("chan1")
	if len(h.Keys()) != 0 {
		t.Fatalf("Keys() after Forget = %v, want empty", h.Keys())
	}
}

func TestUpdateAllNoDeposits(t *testing.T) {
	h := testHub()
	h.Channel("chan1")
	h.Channel("chan2")

	if errs := h.UpdateAll(); len(errs) != 0 {
		t.Fatalf("UpdateAll on deposit-less channels returned errors: %v", errs)
	}
}
