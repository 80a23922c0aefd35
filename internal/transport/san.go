package transport

import (
	"encoding/xml"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// SANSyncInfo is one requested sync within a Server-Alerted Notification.
type SANSyncInfo struct {
	SyncMode    string `xml:"syncMode" validate:"required"`
	ContentType string `xml:"contentType"`
	ServerURI   string `xml:"serverURI" validate:"required"`
}

// SANPayload is the decoded Server-Alerted Notification body
// (SPEC_FULL.md §6 "SAN payload"): `(serverID, [(syncMode, contentType,
// serverURI)])`. It is validated with the same struct-tag library the rest
// of the ambient stack uses for IPC-boundary structs.
type SANPayload struct {
	ServerID string        `xml:"serverID" validate:"required"`
	Syncs    []SANSyncInfo `xml:"sync" validate:"dive"`
}

var sanValidate = validator.New(validator.WithRequiredStructEnabled())

// ParseSAN decodes and validates a notification payload. The wire format
// used here is a simplified XML envelope; a production OBEX-BT/WAP-push
// SAN dialect would additionally accept the binary WBXML encoding, which
// is out of scope (SPEC_FULL.md §2 Non-goals: "reverse-engineering of
// vendor-specific SAN dialects beyond what §6 documents").
func ParseSAN(body []byte) (SANPayload, error) {
	var payload SANPayload
	if err := xml.Unmarshal(body, &payload); err != nil {
		return SANPayload{}, fmt.Errorf("transport: parse SAN: %w", err)
	}
	if err := sanValidate.Struct(payload); err != nil {
		return SANPayload{}, fmt.Errorf("transport: invalid SAN payload: %w", err)
	}
	return payload, nil
}

// MatchConfig is the candidate pool SAN matching iterates in order
// (SPEC_FULL.md §6 "SAN payload" matching order): syncURL equal to
// serverID, then (for OBEX-BT) Bluetooth MAC match, then config name equal
// to serverID.
type MatchConfig struct {
	Name          string
	SyncURL       string
	BluetoothMAC  string
}

// MatchSANConfig picks the local configuration this notification targets,
// or ("", false) if none matches. It creates no configuration itself.
func MatchSANConfig(serverID string, obexBT bool, configs []MatchConfig) (name string, matched bool) {
	for _, c := range configs {
		if c.SyncURL == serverID {
			return c.Name, true
		}
	}
	if obexBT {
		for _, c := range configs {
			if c.BluetoothMAC != "" && c.BluetoothMAC == serverID {
				return c.Name, true
			}
		}
	}
	for _, c := range configs {
		if c.Name == serverID {
			return c.Name, true
		}
	}
	return "", false
}
