package service

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestFormatPoints(t *testing.T) {
	tests := map[string]string{
		"0":       "0,00",
		"0.5":     "0,50",
		"12.34":   "12,34",
		"1234.5":  "1.234,50",
		"1000000": "1.000.000,00",
	}
	for in, want := range tests {
		if got := FormatPoints(amount(in)); got != want {
			t.Errorf("FormatPoints(%s) = %q, want %q", in, got, want)
		}
	}
	if got := FormatCount(1234567); got != "1.234.567" {
		t.Errorf("FormatCount = %q", got)
	}
}

func TestTable(t *testing.T) {
	got := Table([]string{"Ad", "KP"}, [][]string{{"Ali", "10"}, {"Ayşe", "5"}})
	want := "Ad    KP\nAli   10\nAyşe  5"
	if got != want {
		t.Errorf("Table =\n%s\nwant\n%s", got, want)
	}
}

func TestTruncate(t *testing.T) {
	got := Truncate("KirveHub Market Ürünleri", 10)
	if runewidth.StringWidth(got) > 10 || !strings.HasSuffix(got, "…") {
		t.Errorf("Unexpected truncation %q", got)
	}
	if Truncate("kısa", 10) != "kısa" {
		t.Error("Expected short string unchanged")
	}
}
