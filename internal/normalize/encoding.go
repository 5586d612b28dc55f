package normalize

import (
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
)

// DecodeToUTF8 converts a fetched response body to UTF-8. The declared
// Content-Type charset wins; without one, bodies that are already valid
// UTF-8 pass through and the rest go through statistical detection. The
// bank serves its pages as windows-1251.
func DecodeToUTF8(raw []byte, contentType string) []byte {
	if len(raw) == 0 {
		return raw
	}

	cs := charsetFromContentType(contentType)
	if cs == "" {
		if utf8.Valid(raw) {
			return raw
		}
		cs = detectCharset(raw)
	}

	if decoded := decodeAs(raw, cs); decoded != "" {
		return []byte(decoded)
	}
	return raw
}

func charsetFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// RepairEncoding fixes text that survived transport decoding but was
// mis-decoded somewhere upstream. Two mojibake classes occur in
// practice: UTF-8 bytes read as latin-1 (Ð¿ÑÐ¸Ð¼ÐµÑ) and UTF-8 bytes
// read as windows-1251 (Р’С‹С‡РёСЃР»РёС‚Рµ). Text that already reads
// as Cyrillic, or contains no recoverable bytes, passes through.
func RepairEncoding(s string) string {
	if s == "" {
		return s
	}
	if repaired, ok := repairLatin1(s); ok {
		return repaired
	}
	if repaired, ok := repairWin1251(s); ok {
		return repaired
	}
	return s
}

// repairLatin1 recovers UTF-8 text whose bytes were decoded as a
// single-byte latin encoding.
func repairLatin1(s string) (string, bool) {
	if !looksLatin1Mojibake(s) {
		return "", false
	}

	raw, ok := toSingleByte(s)
	if !ok {
		return "", false
	}

	repaired := decodeAs(raw, detectCharset(raw))
	if repaired == "" {
		return "", false
	}

	// Keep the repair only when it actually increased the share of
	// Cyrillic letters; otherwise the detection was a false positive.
	if cyrillicRatio(repaired) > cyrillicRatio(s) {
		return repaired, true
	}
	return "", false
}

// repairWin1251 recovers UTF-8 text whose bytes were decoded as
// windows-1251. Re-encoding the runes through the same table restores
// the original byte stream, which must then read as valid UTF-8.
func repairWin1251(s string) (string, bool) {
	if !looksWin1251Mojibake(s) {
		return "", false
	}

	raw, err := charmap.Windows1251.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return "", false
	}
	// Real Russian text re-encoded this way is almost never valid
	// multi-byte UTF-8; validity is the strongest accept signal.
	if !utf8.Valid(raw) {
		return "", false
	}

	repaired := string(raw)
	if cyrillicRatio(repaired) > cyrillicRatio(s) {
		return repaired, true
	}
	return "", false
}

// looksLatin1Mojibake is a cheap pre-filter: UTF-8 mis-read as latin-1
// is dominated by Ð/Ñ lead bytes and Ã/Â artifacts.
func looksLatin1Mojibake(s string) bool {
	var markers, letters int
	for _, r := range s {
		switch r {
		case 'Ð', 'Ñ', 'Ã', 'Â', '«', '»':
			markers++
		}
		if r > 0x7f {
			letters++
		}
	}
	return markers >= 2 && letters > 0 && markers*3 >= letters
}

// looksWin1251Mojibake pre-filters the windows-1251 class: the 0xD0 and
// 0xD1 UTF-8 lead bytes read as the capitals Р and С, so mis-decoded
// Cyrillic is roughly half Р/С. Genuine text uses those capitals rarely.
func looksWin1251Mojibake(s string) bool {
	var leads, cyr int
	for _, r := range s {
		if r == 'Р' || r == 'С' {
			leads++
		}
		if r >= 0x0400 && r <= 0x04ff {
			cyr++
		}
	}
	return leads >= 2 && leads*2 >= cyr
}

// toSingleByte recovers the original byte stream from a string whose
// runes all fit one byte. Multi-byte runes mean the text was never a
// single-byte latin decode and cannot be repaired this way.
func toSingleByte(s string) ([]byte, bool) {
	raw := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, false
		}
		raw = append(raw, byte(r))
	}
	return raw, true
}

// detectCharset runs statistical detection over the recovered bytes,
// falling back to the bank's declared windows-1251.
func detectCharset(raw []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil || result == nil {
		return "windows-1251"
	}
	return result.Charset
}

// decodeAs decodes raw under the named charset. Only the encodings the
// bank has been observed to serve are supported.
func decodeAs(raw []byte, charset string) string {
	switch strings.ToLower(charset) {
	case "utf-8", "utf8", "ascii", "us-ascii":
		return string(raw)
	case "windows-1251", "cp1251", "koi8-r", "ibm866", "iso-8859-5":
		// The detector occasionally confuses Cyrillic single-byte
		// encodings with each other; windows-1251 is what the site
		// actually serves.
		decoded, err := charmap.Windows1251.NewDecoder().Bytes(raw)
		if err != nil {
			return ""
		}
		return string(decoded)
	default:
		decoded, err := charmap.Windows1251.NewDecoder().Bytes(raw)
		if err != nil {
			return ""
		}
		return string(decoded)
	}
}

// cyrillicRatio is the share of Cyrillic letters among all letters.
func cyrillicRatio(s string) float64 {
	var cyr, letters int
	for _, r := range s {
		if r >= 0x0400 && r <= 0x04ff {
			cyr++
		}
		if r > 0x7f || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			letters++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(cyr) / float64(letters)
}
