package kb

import (
	"strings"
	"testing"
)

func TestWebDocID(t *testing.T) {
	if got := WebDocID("https://example.com"); got != "web_c984d06a" {
		t.Errorf("WebDocID = %q", got)
	}
	if WebDocID("https://a.com") == WebDocID("https://b.com") {
		t.Error("different URLs should give different IDs")
	}
}

func TestFileDocID(t *testing.T) {
	want := "file_8f2bb144a603154b065ad04169822eb7a7aad1155212256b9bc1543253f8f704"
	if got := FileDocID("/tmp/inbox/a.txt"); got != want {
		t.Errorf("FileDocID = %q, want %q", got, want)
	}
	if FileDocID("/tmp/inbox/../inbox/a.txt") != want {
		t.Error("equivalent paths should share an ID")
	}
	if FileDocID("/tmp/inbox/b.txt") == want {
		t.Error("different paths should give different IDs")
	}
}

func TestUploadDocID(t *testing.T) {
	if got := UploadDocID("abc"); !strings.HasPrefix(got, "user_") || got != "user_abc" {
		t.Errorf("UploadDocID = %q", got)
	}
}
