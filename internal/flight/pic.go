package flight

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PICKind tells which variant a PIC holds
type PICKind string

// PIC variants
const (
	PICNone    PICKind = ""
	PICText    PICKind = "text"
	PICContact PICKind = "contact"
)

// Contact is a structured pilot-in-command reference
type Contact struct {
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name,omitempty"`
	ShortName string `json:"short_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// PIC is the pilot in command: either free text or a structured contact.
// Records may carry it as a string, an object or an array of either; it is
// decoded once here and never inspected for shape again.
type PIC struct {
	Kind    PICKind
	Text    string
	Contact *Contact
}

// TextPIC builds a free-text PIC
func TextPIC(s string) PIC {
	if s == "" {
		return PIC{}
	}
	return PIC{Kind: PICText, Text: s}
}

// ContactPIC builds a structured PIC
func ContactPIC(c Contact) PIC {
	return PIC{Kind: PICContact, Contact: &c}
}

// IsZero reports whether no PIC is set
func (p PIC) IsZero() bool {
	return p.Kind == PICNone
}

// DisplayName returns the best human readable name
func (p PIC) DisplayName() string {
	switch p.Kind {
	case PICText:
		return p.Text
	case PICContact:
		if p.Contact.ShortName != "" {
			return p.Contact.ShortName
		}
		if p.Contact.Name != "" {
			return p.Contact.Name
		}
	}
	return "N/A"
}

// MarshalJSON writes text as a JSON string and contacts as an object
func (p PIC) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PICText:
		return json.Marshal(p.Text)
	case PICContact:
		return json.Marshal(p.Contact)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, a string, an object, or an array whose first
// element is one of those
func (p *PIC) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*p = PIC{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode pic text: %w", err)
		}
		*p = TextPIC(s)
		return nil
	case '{':
		var c Contact
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to decode pic contact: %w", err)
		}
		*p = ContactPIC(c)
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("failed to decode pic list: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		return p.UnmarshalJSON(items[0])
	default:
		return fmt.Errorf("unsupported pic value: %s", string(data))
	}
}
