package tokens

import "time"

const (
	TypeClassic1K   = "MIFARE Classic 1K"
	TypeClassic4K   = "MIFARE Classic 4K"
	TypeClassicMini = "MIFARE Classic Mini"
)

type Token struct {
	Type     string    `json:"type"`
	UID      string    `json:"uid"`
	Text     string    `json:"text"`
	Data     string    `json:"data"`
	ScanTime time.Time `json:"scanTime"`
	Source   string    `json:"source"`
}

// Equal reports whether two tokens refer to the same tag with the same
// contents. Two nil tokens are equal.
func Equal(a, b *Token) bool {
	if a == nil && b == nil {
		return true
	} else if a == nil || b == nil {
		return false
	}

	return a.UID == b.UID && a.Text == b.Text && a.Data == b.Data
}
