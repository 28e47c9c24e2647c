package core

import (
	"errors"
	"strings"
	"testing"
)

func TestRecordInputValidate(t *testing.T) {
	good := RecordInput{
		Date:        "25/08/2026",
		Category:    "Mercado",
		Description: "compra semanal",
		Amount:      125000,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		in   RecordInput
		want error
	}{
		{"bad date", RecordInput{Date: "2026-08-25", Category: "c", Description: "d", Amount: 1}, ErrInvalidDate},
		{"empty category", RecordInput{Date: "25/08/2026", Category: "  ", Description: "d", Amount: 1}, ErrEmptyCategory},
		{"empty description", RecordInput{Date: "25/08/2026", Category: "c", Description: "", Amount: 1}, ErrEmptyDescription},
		{"zero amount", RecordInput{Date: "25/08/2026", Category: "c", Description: "d", Amount: 0}, ErrInvalidAmount},
		{"negative amount", RecordInput{Date: "25/08/2026", Category: "c", Description: "d", Amount: -10}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.in.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}

	long := good
	long.Description = strings.Repeat("x", 201)
	if err := long.Validate(); err == nil {
		t.Fatal("expected error for over-long description")
	}
}
