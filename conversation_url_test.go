package main

import (
	"errors"
	"testing"
)

func TestValidateConversationURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{url: "https://chatgpt.com/share/686cc8c4-d56c-800c-a558-5372306bfd77", wantErr: false},
		{url: "https://chatgpt.com/c/686cc57f-feb0-800c-8d46-6f8374ad59e4", wantErr: false},
		{url: "http://chatgpt.com/share/abc?x=1", wantErr: false},
		{url: "https://chatgpt.com/g/abc", wantErr: true},
		{url: "https://example.com/share/abc", wantErr: true},
		{url: "ftp://chatgpt.com/share/abc", wantErr: true},
		{url: "chatgpt.com/share/abc", wantErr: true},
		{url: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			err := validateConversationURL(tc.url)
			if (err != nil) != tc.wantErr {
				t.Fatalf("validateConversationURL(%q) err=%v, wantErr=%v", tc.url, err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, errInvalidURL) {
				t.Errorf("expected errInvalidURL, got %v", err)
			}
		})
	}
}

func TestExtractConversationID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://chatgpt.com/share/686cc8c4-d56c-800c-a558-5372306bfd77", want: "686cc8c4-d56c-800c-a558-5372306bfd77"},
		{url: "https://chatgpt.com/c/abc-123/extra", want: "abc-123"},
		{url: "https://chatgpt.com/share/abc?model=x", want: "abc"},
		{url: "https://chatgpt.com/share/", want: ""},
		{url: "https://chatgpt.com/share/a%2Fb", want: ""},
		{url: "https://example.com/", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			got := extractConversationID(tc.url)
			if got != tc.want {
				t.Errorf("extractConversationID mismatch:\n--- got ---\n%q\n--- want ---\n%q\n", got, tc.want)
			}
		})
	}
}
