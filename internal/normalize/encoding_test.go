package normalize

import (
	"testing"

	"golang.org/x/text/encoding/charmap"
)

// latin1Mojibake re-decodes a string's UTF-8 bytes as single-byte
// latin-1, reproducing what a mis-decoding upstream layer produces.
func latin1Mojibake(s string) string {
	b := []byte(s)
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// win1251Mojibake re-decodes a string's UTF-8 bytes as windows-1251,
// the other mis-decode class seen in the wild.
func win1251Mojibake(t *testing.T, s string) string {
	t.Helper()
	b, err := charmap.Windows1251.NewDecoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("building windows-1251 mojibake for %q: %v", s, err)
	}
	return string(b)
}

// toWin1251 encodes UTF-8 text into raw windows-1251 bytes, the form
// the bank's server actually puts on the wire.
func toWin1251(t *testing.T, s string) []byte {
	t.Helper()
	b, err := charmap.Windows1251.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encoding %q as windows-1251: %v", s, err)
	}
	return b
}

func TestRepairEncoding(t *testing.T) {
	orig := "Вычислите значение выражения и запишите ответ"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "latin1 mojibake repaired",
			in:   latin1Mojibake(orig),
			want: orig,
		},
		{
			name: "windows-1251 mojibake repaired",
			in:   win1251Mojibake(t, orig),
			want: orig,
		},
		{
			name: "clean cyrillic untouched",
			in:   orig,
			want: orig,
		},
		{
			name: "cyrillic abbreviations untouched",
			in:   "Решите: СССР и РСФСР упоминаются в тексте",
			want: "Решите: СССР и РСФСР упоминаются в тексте",
		},
		{
			name: "ascii untouched",
			in:   "plain ascii text 123",
			want: "plain ascii text 123",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepairEncoding(tt.in); got != tt.want {
				t.Errorf("RepairEncoding(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeToUTF8(t *testing.T) {
	orig := "Вычислите значение выражения"

	tests := []struct {
		name        string
		raw         []byte
		contentType string
		want        string
	}{
		{
			name:        "declared windows-1251",
			raw:         toWin1251(t, orig),
			contentType: "text/html; charset=windows-1251",
			want:        orig,
		},
		{
			name:        "undeclared windows-1251 detected",
			raw:         toWin1251(t, orig),
			contentType: "text/html",
			want:        orig,
		},
		{
			name:        "utf-8 without declaration untouched",
			raw:         []byte(orig),
			contentType: "",
			want:        orig,
		},
		{
			name:        "declared utf-8 untouched",
			raw:         []byte(orig),
			contentType: "text/html; charset=utf-8",
			want:        orig,
		},
		{
			name:        "empty body",
			raw:         nil,
			contentType: "text/html; charset=windows-1251",
			want:        "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(DecodeToUTF8(tt.raw, tt.contentType)); got != tt.want {
				t.Errorf("DecodeToUTF8 = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLooksLatin1Mojibake(t *testing.T) {
	if looksLatin1Mojibake("обычный русский текст") {
		t.Error("clean Cyrillic flagged as latin-1 mojibake")
	}
	if !looksLatin1Mojibake(latin1Mojibake("пример текста")) {
		t.Error("latin1-decoded Cyrillic not flagged")
	}
}

func TestLooksWin1251Mojibake(t *testing.T) {
	if looksWin1251Mojibake("Решите уравнение и запишите ответ") {
		t.Error("clean Cyrillic flagged as windows-1251 mojibake")
	}
	if !looksWin1251Mojibake(win1251Mojibake(t, "пример текста")) {
		t.Error("windows-1251-decoded Cyrillic not flagged")
	}
}
