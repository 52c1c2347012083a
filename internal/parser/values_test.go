package parser

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		input   string
		wantErr bool
	}{
		{"2025-01-02", false},
		{"02/01/2025", false},
		{"2025/01/02", false},
		{"20250102", false},
		{"  2025-01-02 ", false},
		{"", true},
		{"2025-13-02", true},
		{"01-02-2025", true},
		{"ontem", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{input: "1234.56", want: 1234.56},
		{input: "-1.234,56", want: -1234.56},
		{input: "1,234.56", want: 1234.56},
		{input: "1.234.567,89", want: 1234567.89},
		{input: "10,5", want: 10.5},
		{input: "R$ 10,00", want: 10},
		{input: "(5,00)", want: -5},
		{input: "+7", want: 7},
		{input: "150,00-", want: -150},
		{input: "0", want: 0},
		{input: "", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "NaN", wantErr: true},
		{input: "1.2.3,4,5", wantErr: true},
		{input: "12e3", wantErr: true},
		{input: "1.234", wantErr: true},
		{input: "-1,234", wantErr: true},
		{input: "0.125", want: 0.125},
		{input: ".125", want: 0.125},
		{input: "1.2345", want: 1.2345},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAmount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseAmount(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
