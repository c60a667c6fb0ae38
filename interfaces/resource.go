package interfaces

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// driveIDLength is the length of a drive identifier in hex characters.
const driveIDLength = 8

// DriveID is the short deterministic identifier naming one registered backend
// in path strings. The empty DriveID addresses the default manager.
type DriveID string

// DriveIDFor derives the drive identifier for a backend connection URI.
//
// The identifier is the MD5 digest of the URI truncated to 8 hex characters.
// The same URI always yields the same identifier; distinct URIs collide only
// with negligible probability. Collisions are not detected.
func DriveIDFor(uri string) DriveID {
	sum := md5.Sum([]byte(uri))
	return DriveID(hex.EncodeToString(sum[:])[:driveIDLength])
}

// Valid reports whether d has the drive identifier form: exactly 8 lowercase
// hex characters.
func (d DriveID) Valid() bool {
	if len(d) != driveIDLength {
		return false
	}
	for i := 0; i < len(d); i++ {
		c := d[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// String returns the identifier as a plain string.
func (d DriveID) String() string { return string(d) }

// SplitDrivePath splits a drive-prefixed path into its drive identifier and
// backend-relative path.
//
// A prefix is only recognized when the text before the first ':' has the
// drive identifier form, or is empty (":path" addresses the default drive
// explicitly). Anything else, including paths without a ':', is routed to the
// default drive with the path unchanged.
func SplitDrivePath(p string) (DriveID, string) {
	i := strings.IndexByte(p, ':')
	if i < 0 {
		return "", p
	}
	prefix := DriveID(p[:i])
	if prefix == "" {
		return "", p[i+1:]
	}
	if !prefix.Valid() {
		return "", p
	}
	return prefix, p[i+1:]
}

// PrefixPath prepends the drive identifier to a backend-relative path. The
// empty identifier leaves the path untouched.
func (d DriveID) PrefixPath(p string) string {
	if d == "" {
		return p
	}
	return string(d) + ":" + p
}

// ResourceSpec describes one backend to register: a connection URI plus
// arbitrary extra metadata supplied by configuration. Only the URI
// participates in drive identity; the extra fields are passed through into
// the Resource record returned to callers.
type ResourceSpec struct {
	URL string

	// Extra holds the descriptor fields other than url, preserved verbatim.
	Extra map[string]json.RawMessage
}

// UnmarshalJSON decodes a descriptor object, keeping unknown fields in Extra.
func (s *ResourceSpec) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	raw, ok := fields["url"]
	if !ok {
		return fmt.Errorf("%w: descriptor is missing the url field", ErrInvalidResourceURI)
	}
	if err := json.Unmarshal(raw, &s.URL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResourceURI, err)
	}
	delete(fields, "url")

	s.Extra = fields
	return nil
}

// MarshalJSON encodes the descriptor with its extra fields restored.
func (s ResourceSpec) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(s.Extra)+1)
	for k, v := range s.Extra {
		fields[k] = v
	}
	raw, err := json.Marshal(s.URL)
	if err != nil {
		return nil, err
	}
	fields["url"] = raw
	return json.Marshal(fields)
}

// Resource is a registered backend as exposed to callers: the original
// descriptor plus its assigned drive identifier.
type Resource struct {
	Drive DriveID
	Spec  ResourceSpec
}

// MarshalJSON flattens the resource to {"drive": ..., "url": ..., <extras>}.
func (r Resource) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(r.Spec.Extra)+2)
	for k, v := range r.Spec.Extra {
		fields[k] = v
	}

	raw, err := json.Marshal(r.Spec.URL)
	if err != nil {
		return nil, err
	}
	fields["url"] = raw

	raw, err = json.Marshal(r.Drive)
	if err != nil {
		return nil, err
	}
	fields["drive"] = raw

	return json.Marshal(fields)
}

// UnmarshalJSON decodes a registered resource record.
func (r *Resource) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["drive"]; ok {
		if err := json.Unmarshal(raw, &r.Drive); err != nil {
			return err
		}
		delete(fields, "drive")
	}

	spec, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(spec, &r.Spec)
}
