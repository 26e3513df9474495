package upstreamconfig

import "vpnctl/internal/models"

// Kind selects which upstream document a Writer operation targets.
type Kind string

const (
	V2Ray Kind = "v2ray"
	Xray  Kind = "xray"
)

// Client is one VLESS client entry in an inbound's settings.clients[] array.
// Kind determines which optional field is populated: v2ray carries AlterID,
// xray carries Level (spec.md §6), grounded on sincronizar.rs's
// atualizar_configs_xray ({email,id,level}) and atualizar_configs_v2ray
// ({id,alterId,email}).
type Client struct {
	ID      string `json:"id"`
	Email   string `json:"email,omitempty"`
	Level   *int   `json:"level,omitempty"`
	AlterID *int   `json:"alterId,omitempty"`
}

// clientFor builds the Client shape for one user under kind.
func clientFor(u models.User, kind Kind) Client {
	zero := 0
	if kind == Xray {
		return Client{ID: u.UUID, Email: u.Login, Level: &zero}
	}
	return Client{ID: u.UUID, Email: u.Login, AlterID: &zero}
}

// clientMap converts a Client to a generic JSON map so it can be spliced
// into the document's untyped inbounds[].settings.clients[] array without
// disturbing any sibling field the writer doesn't know about.
func clientMap(c Client) map[string]interface{} {
	m := map[string]interface{}{"id": c.ID}
	if c.Email != "" {
		m["email"] = c.Email
	}
	if c.Level != nil {
		m["level"] = float64(*c.Level)
	}
	if c.AlterID != nil {
		m["alterId"] = float64(*c.AlterID)
	}
	return m
}

func clientID(raw interface{}) (string, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return "", false
	}
	id, ok := m["id"].(string)
	return id, ok
}
