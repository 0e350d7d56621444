package directory

import (
	"unicode/utf8"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// Entry is a search result scoped to one session: the entry's
// distinguished name plus a readable view of its attributes.
type Entry struct {
	// DN is the entry's distinguished name.
	DN string

	// Attributes maps attribute names to their values. Binary Active
	// Directory values (objectSid, objectGUID) are rendered in their
	// canonical string forms.
	Attributes map[string][]string
}

// WrapEntry converts a raw protocol entry into an Entry, normalizing
// attribute values that are stored in binary form.
func WrapEntry(e *ldap.Entry) *Entry {
	attrs := make(map[string][]string, len(e.Attributes))
	for _, attr := range e.Attributes {
		values := make([]string, 0, len(attr.Values))
		for i, v := range attr.Values {
			var raw []byte
			if i < len(attr.ByteValues) {
				raw = attr.ByteValues[i]
			}
			values = append(values, normalizeAttributeValue(attr.Name, v, raw))
		}
		attrs[attr.Name] = values
	}
	return &Entry{DN: e.DN, Attributes: attrs}
}

// AttributeValue returns the first value of the named attribute, or ""
// when absent.
func (e *Entry) AttributeValue(name string) string {
	values := e.Attributes[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// normalizeAttributeValue renders well-known binary attributes in
// their canonical string forms and leaves everything else untouched.
func normalizeAttributeValue(name, value string, raw []byte) string {
	switch name {
	case "objectSid":
		if s, ok := decodeSID(raw); ok {
			return s
		}
	case "objectGUID":
		if s, ok := decodeGUID(raw); ok {
			return s
		}
	}
	if value == "" || utf8.ValidString(value) {
		return value
	}
	// An unknown binary value; better an empty string than mojibake in
	// logs and narration.
	return ""
}

// decodeSID converts a binary security identifier to its S-1-5-21-...
// string form.
func decodeSID(raw []byte) (string, bool) {
	// Revision byte, sub-authority count, 6-byte authority, then
	// 4 bytes per sub-authority.
	if len(raw) < 8 || len(raw) < 8+int(raw[1])*4 {
		return "", false
	}
	return objectsid.Decode(raw).String(), true
}

// decodeGUID converts the directory's mixed-endian GUID bytes into a
// canonical UUID string. The first three groups are stored
// little-endian; the final eight bytes are in order.
func decodeGUID(raw []byte) (string, bool) {
	if len(raw) != 16 {
		return "", false
	}

	var ordered [16]byte
	ordered[0], ordered[1], ordered[2], ordered[3] = raw[3], raw[2], raw[1], raw[0]
	ordered[4], ordered[5] = raw[5], raw[4]
	ordered[6], ordered[7] = raw[7], raw[6]
	copy(ordered[8:], raw[8:])

	id, err := uuid.FromBytes(ordered[:])
	if err != nil {
		return "", false
	}
	return id.String(), true
}
