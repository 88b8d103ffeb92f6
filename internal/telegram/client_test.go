package telegram

import (
	"strings"
	"testing"
	"time"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFormatSummary(t *testing.T) {
	s := Summary{
		IterationID: "7c3a",
		Outcome:     "submitted",
		Campaigns:   2,
		Beneficiary: "owner",
		Weights: map[string]float64{
			"owner": 0.5,
			"hk-a":  0.3,
			"hk-b":  0.2,
			"hk-c":  0,
		},
		Duration: 1500 * time.Millisecond,
	}

	msg := formatSummary(s)

	if !strings.Contains(msg, "submitted") {
		t.Error("summary should name the outcome")
	}
	if !strings.Contains(msg, "Campaigns: 2") {
		t.Error("summary should carry the campaign count")
	}
	// Weights sorted descending: owner first, flagged as beneficiary.
	ownerIdx := strings.Index(msg, "owner")
	aIdx := strings.Index(msg, "hk\\-a")
	if ownerIdx < 0 || aIdx < 0 || ownerIdx > aIdx {
		t.Errorf("weights out of order:\n%s", msg)
	}
	if !strings.Contains(msg, "🔥") {
		t.Error("beneficiary should be flagged")
	}
	// Zero-weight miners are left out.
	if strings.Contains(msg, "hk\\-c") {
		t.Errorf("zero-weight miner listed:\n%s", msg)
	}
}

func TestFormatSummary_TruncatesLongList(t *testing.T) {
	weights := make(map[string]float64, 25)
	for i := 0; i < 25; i++ {
		weights[strings.Repeat("x", i+1)] = float64(i+1) / 325
	}
	msg := formatSummary(Summary{
		IterationID: "7c3a",
		Outcome:     "submitted",
		Campaigns:   1,
		Weights:     weights,
	})

	if !strings.Contains(msg, "and 15 more") {
		t.Errorf("expected truncation marker:\n%s", msg)
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// NewClient with non-numeric chatID should return an error
	// Note: This test exercises the chat ID parsing error path
	// The bot token validation happens first (network call), so we use a clearly
	// invalid format to test the error handling flow
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}
