package twitch_widget

import (
	"encoding/json"
	"fmt"
)

const redacted = "[redacted]"

// Secret holds a credential. Printing it, or encoding it as JSON, yields a
// placeholder; call Reveal to get the raw value.
type Secret string

func (s Secret) Reveal() string {
	return string(s)
}

func (s Secret) IsSet() bool {
	return s != ""
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return fmt.Sprintf("%q", s.String())
}

func (s Secret) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('#') {
			fmt.Fprint(f, s.GoString())
			return
		}
		fmt.Fprint(f, s.String())
	case 's':
		fmt.Fprint(f, s.String())
	case 'q':
		fmt.Fprintf(f, "%q", s.String())
	default:
		fmt.Fprintf(f, "%%!%c(string=%s)", verb, s.String())
	}
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
