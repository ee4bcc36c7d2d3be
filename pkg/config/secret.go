package config

const redacted = "[REDACTED]"

// Secret holds credential material. Every formatting path prints a redacted
// placeholder; callers that need the raw value use Reveal.
type Secret string

func (s Secret) Reveal() string {
	return string(s)
}

func (s Secret) Empty() bool {
	return s == ""
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return s.String()
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
