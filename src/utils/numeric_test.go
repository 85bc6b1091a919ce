package utils

import "testing"

func TestParseLenientFloat(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		fallback float64
		want     float64
	}{
		{"plain", "100", 0, 100},
		{"decimal point", "12.5", 0, 12.5},
		{"decimal comma", "12,5", 0, 12.5},
		{"surrounding whitespace", "  42.1  ", 0, 42.1},
		{"whitespace around comma", " 0,75 ", 0, 0.75},
		{"negative", "-3.5", 0, -3.5},
		{"empty", "", 7, 7},
		{"whitespace only", "   ", 7, 7},
		{"garbage", "abc", 7, 7},
		{"mixed garbage", "12x", 7, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseLenientFloat(tc.input, tc.fallback); got != tc.want {
				t.Errorf("ParseLenientFloat(%q, %v) = %v, want %v", tc.input, tc.fallback, got, tc.want)
			}
		})
	}
}

func TestParseLenientInt(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		fallback int64
		want     int64
	}{
		{"plain", "5", 0, 5},
		{"fractional truncates", "5.9", 0, 5},
		{"comma fractional truncates", "5,9", 0, 5},
		{"negative truncates toward zero", "-2.7", 0, -2},
		{"empty", "", 3, 3},
		{"garbage", "n/a", 3, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseLenientInt(tc.input, tc.fallback); got != tc.want {
				t.Errorf("ParseLenientInt(%q, %v) = %v, want %v", tc.input, tc.fallback, got, tc.want)
			}
		})
	}
}

func TestValidISODate(t *testing.T) {
	valid := []string{"2025-08-01", "2024-02-29", "1999-12-31"}
	for _, d := range valid {
		if !ValidISODate(d) {
			t.Errorf("ValidISODate(%q) = false, want true", d)
		}
	}
	invalid := []string{"", "2025-8-1", "01.08.2025", "2025-13-01", "2025-02-30", "20250801"}
	for _, d := range invalid {
		if ValidISODate(d) {
			t.Errorf("ValidISODate(%q) = true, want false", d)
		}
	}
}
