package chat

import (
	"fmt"
	"unicode/utf8"
)

// MaxTextBytes is the largest text that still fits in one frame. The frame
// body is limited to 65535 bytes and the JSON envelope around the text takes
// 36 of them; escaping can make the encoded text longer than this, so the
// encoder remains the final authority.
const MaxTextBytes = 65535 - 36

// ValidateText checks that text is worth sending before it reaches the wire.
func ValidateText(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxTextBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxTextBytes)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
