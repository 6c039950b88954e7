package upload

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/liao/chat-analyst/internal/parser"
)

const chatText = "12/5/23, 10:30 AM - Alice: hello there\n12/5/23, 10:31 AM - Bob: hi Alice\n"

func TestDecode_Text(t *testing.T) {
	got, err := Decode("chat.txt", []byte(chatText), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != chatText {
		t.Errorf("got %q", got)
	}
}

func TestDecode_TextStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, chatText...)
	got, err := Decode("Chat.TXT", data, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "12/5/23") {
		t.Errorf("BOM not stripped: %q", got[:10])
	}
	if len(parser.Parse(got)) != 2 {
		t.Error("first line should still parse after BOM removal")
	}
}

func TestTextReader(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, chatText...)
	got, err := parser.ParseReader(TextReader(bytes.NewReader(data)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Sender != "Alice" {
		t.Errorf("BOM should be skipped before parsing, got %+v", got)
	}

	// 不足 3 字节时原样返回
	short, _ := parser.ParseReader(TextReader(strings.NewReader("hi")))
	if len(short) != 0 {
		t.Errorf("got %+v", short)
	}
}

func TestIsText(t *testing.T) {
	for name, want := range map[string]bool{
		"chat.txt": true, "Chat.TXT": true, "chat": true,
		"chat.pdf": false, "chat.enc": false, "chat.html": false,
	} {
		if got := IsText(name); got != want {
			t.Errorf("IsText(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestDecode_InvalidUTF8(t *testing.T) {
	_, err := Decode("chat.txt", []byte{0xff, 0xfe, 0x00}, Options{})
	if !errors.Is(err, ErrInvalidText) {
		t.Errorf("expected ErrInvalidText, got %v", err)
	}
}

func TestDecode_Unsupported(t *testing.T) {
	_, err := Decode("chat.docx", []byte("whatever"), Options{})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestDecode_TooLarge(t *testing.T) {
	_, err := Decode("chat.txt", bytes.Repeat([]byte("a"), 11), Options{MaxBytes: 10})
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestDecode_HTML(t *testing.T) {
	page := `<html><head><style>p{color:red}</style><script>var x = 1;</script></head>
<body>
  <div class="chat">
    <div class="msg">12/5/23, 10:30 AM - Alice: hello   there</div>
    <div class="msg">12/5/23, 10:31 AM - Bob: hi Alice</div>
    <p>Messages are end-to-end encrypted.<br>12/5/23, 10:32 AM - Alice: bye</p>
  </div>
</body></html>`

	got, err := Decode("export.html", []byte(page), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "var x") || strings.Contains(got, "color:red") {
		t.Errorf("script/style text leaked: %q", got)
	}

	records := parser.Parse(got)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d from %q", len(records), got)
	}
	if records[0].Message != "hello there" {
		t.Errorf("whitespace not collapsed: %q", records[0].Message)
	}
	if records[2].Message != "bye" {
		t.Errorf("<br> should split lines, got %q", records[2].Message)
	}
}

func TestDecode_HTMLWithoutBlocks(t *testing.T) {
	got, err := HTMLText(strings.NewReader("<html><body>12/5/23, 10:30 AM - Alice: hi</body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "12/5/23, 10:30 AM - Alice: hi" {
		t.Errorf("got %q", got)
	}
}

func TestDecode_Encrypted(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, saltSize)
	nonce := bytes.Repeat([]byte{2}, nonceSize)
	enc, err := Encrypt([]byte(chatText), "s3cret", salt, nonce)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Decode("backup.enc", enc, Options{DecryptKey: "s3cret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != chatText {
		t.Errorf("got %q", got)
	}

	if _, err := Decode("backup.enc", enc, Options{DecryptKey: "wrong"}); err == nil {
		t.Error("expected error with the wrong password")
	}
	if _, err := Decode("backup.enc", enc, Options{}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

func TestDecrypt_TooSmall(t *testing.T) {
	if _, err := Decrypt(make([]byte, headerSize-1), "k"); err == nil {
		t.Error("expected error for truncated file")
	}
}

func TestDecode_BrokenPDF(t *testing.T) {
	if _, err := Decode("chat.pdf", []byte("%PDF-1.4 not really"), Options{}); err == nil {
		t.Error("expected error for a broken PDF")
	}
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.txt")
	if err := os.WriteFile(path, []byte(chatText), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := DecodeFile(path, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != chatText {
		t.Errorf("got %q", got)
	}

	if _, err := DecodeFile(path, Options{MaxBytes: 5}); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
	if _, err := DecodeFile(filepath.Join(t.TempDir(), "missing.txt"), Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}
