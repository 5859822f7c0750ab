package main

import "testing"

func TestExtractDate(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		expected string
		found    bool
	}{
		{"dashed", "Fecha de entrega: 15-08-2025", "15-08-2025", true},
		{"slashed", "Llega el 5/9/2025 a tu domicilio", "05-09-2025", true},
		{"spanish long form", "Recíbelo el 3 de septiembre de 2025", "03-09-2025", true},
		{"spanish with del", "entrega el 21 de marzo del 2026", "21-03-2026", true},
		{"spanish setiembre", "10 de setiembre de 2025", "10-09-2025", true},
		{"english long form", "Arrives August 15, 2025", "15-08-2025", true},
		{"english abbreviation", "Arrives Sep 2nd, 2025", "02-09-2025", true},
		{"leap day", "29-02-2024", "29-02-2024", true},
		{"invalid leap day skipped", "29-02-2023", "", false},
		{"april 31st rejected", "31-04-2025", "", false},
		{"first valid wins", "31-04-2025 o 01-05-2025", "01-05-2025", true},
		{"dashed beats long form", "15 de agosto de 2025 / 16-08-2025", "16-08-2025", true},
		{"year out of range", "15-08-1999", "", false},
		{"no date", "Tu carro está vacío", "", false},
		{"empty", "", "", false},
		{"noise around", "★★ Entrega » 07/10/2025 «", "07-10-2025", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractDate(tc.text)
			if ok != tc.found || got != tc.expected {
				t.Errorf("ExtractDate(%q) = (%q, %v), want (%q, %v)", tc.text, got, ok, tc.expected, tc.found)
			}
		})
	}
}

func TestExtractDateIsIdempotent(t *testing.T) {
	inputs := []string{
		"Fecha de entrega: 15-08-2025",
		"3 de septiembre de 2025",
		"August 15, 2025",
		"1/2/2030",
	}
	for _, in := range inputs {
		first, ok := ExtractDate(in)
		if !ok {
			t.Fatalf("no date in %q", in)
		}
		second, ok := ExtractDate(first)
		if !ok || second != first {
			t.Errorf("ExtractDate(%q) = %q, re-extracted as %q", in, first, second)
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"1-2-2025", "01-02-2025"},
		{"01/02/2025", "01-02-2025"},
		{" 15-08-2025 ", "15-08-2025"},
		{"2025-08-15", ""},
		{"15 de agosto de 2025", ""},
		{"", ""},
	}
	for _, tc := range testCases {
		if got := NormalizeDate(tc.in); got != tc.want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsValidCommitmentDate(t *testing.T) {
	testCases := []struct {
		date  string
		valid bool
	}{
		{"15-08-2025", true},
		{"29-02-2024", true},
		{"29-02-2023", false},
		{"31-04-2025", false},
		{"00-01-2025", false},
		{"01-13-2025", false},
		{"01-01-2000", true},
		{"31-12-2100", true},
		{"01-01-2101", false},
		{"1-1-2025", false},
		{"15/08/2025", false},
	}
	for _, tc := range testCases {
		if got := IsValidCommitmentDate(tc.date); got != tc.valid {
			t.Errorf("IsValidCommitmentDate(%q) = %v, want %v", tc.date, got, tc.valid)
		}
	}
}

func TestSanitizeText(t *testing.T) {
	got := SanitizeText("  Fecha\tde   entrega:\n 15-08-2025 ★ ")
	want := "Fecha de entrega: 15-08-2025"
	if got != want {
		t.Errorf("SanitizeText = %q, want %q", got, want)
	}
}
