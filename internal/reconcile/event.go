package reconcile

import (
	"strings"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/phone"
)

// Event is one provider webhook payload reduced to the fields reconciliation
// cares about. Normalize is total: unrecognized payloads produce a zero-ish
// Event that the reconciler classifies as ignored, never an error.
type Event struct {
	Dialect       string
	FromMe        bool
	Number        string
	ProviderID    string
	BatchID       int64
	Ack           int
	HasAck        bool
	IsInboundText bool
	ReplyToID     string
	Text          string
	Failed        bool
	FailReason    string
	Raw           map[string]any
}

// Normalize maps one decoded webhook body to an Event. It probes the field
// layouts of the evolution and uazapi dialects first and falls back to a
// generic probe across both.
func Normalize(body map[string]any) Event {
	ev := Event{Raw: body}

	data, _ := asMap(getPath(body, "data"))
	if data == nil {
		data = body
	}

	ev.Dialect = detectDialect(body)

	key, _ := asMap(getPath(data, "key"))

	ev.ProviderID = firstString(
		getPath(key, "id"),
		getPath(data, "messageid"),
		getPath(data, "id"),
		getPath(body, "messageId"),
	)
	ev.FromMe = asBool(
		getPath(key, "fromMe"),
		getPath(data, "fromMe"),
		getPath(data, "wasSentByApi"),
	)
	ev.Number = phone.Canonicalize(firstString(
		getPath(key, "remoteJid"),
		getPath(data, "chatid"),
		getPath(data, "sender"),
		getPath(data, "from"),
		getPath(body, "number"),
	))

	if n, ok := firstNumber(
		getPath(data, "ack"),
		getPath(body, "ack"),
		getPath(data, "status"),
	); ok {
		ev.Ack = int(n)
		ev.HasAck = true
	}
	// Some dialects ship ack as a named state rather than a number.
	if !ev.HasAck {
		if a, ok := ackFromName(firstString(getPath(data, "status"), getPath(body, "status"))); ok {
			ev.Ack = a
			ev.HasAck = true
		}
	}

	ev.Text = firstString(
		getPath(data, "message", "conversation"),
		getPath(data, "message", "extendedTextMessage", "text"),
		getPath(data, "text"),
		getPath(data, "body"),
		getPath(body, "text"),
	)
	ev.ReplyToID = firstString(
		getPath(data, "message", "extendedTextMessage", "contextInfo", "stanzaId"),
		getPath(data, "contextInfo", "stanzaId"),
		getPath(data, "quoted", "id"),
		getPath(data, "quotedMsgId"),
	)
	ev.IsInboundText = !ev.FromMe && ev.Text != "" && ev.Number != ""

	ev.Failed, ev.FailReason = detectFailure(body, data)

	if n, ok := firstNumber(getPath(data, "batchId"), getPath(body, "batchId")); ok {
		ev.BatchID = int64(n)
	}

	return ev
}

func detectDialect(body map[string]any) string {
	if firstString(getPath(body, "event")) != "" && getPath(body, "data") != nil {
		return "evolution"
	}
	if firstString(getPath(body, "EventType")) != "" || firstString(getPath(body, "type")) != "" {
		return "uazapi"
	}
	return "generic"
}

// detectFailure flags explicitly failed sends: a message_failed event type, a
// status of "error", or an error field anywhere the dialects put one.
func detectFailure(body, data map[string]any) (bool, string) {
	typ := strings.ToLower(firstString(
		getPath(body, "type"),
		getPath(body, "event"),
		getPath(body, "EventType"),
	))
	if strings.Contains(typ, "message_failed") {
		return true, firstString(getPath(data, "error"), getPath(body, "error"), "message_failed")
	}
	if strings.EqualFold(firstString(getPath(data, "status"), getPath(body, "status")), "error") {
		return true, firstString(getPath(data, "error"), getPath(body, "error"), "status error")
	}
	if reason := firstString(getPath(data, "error"), getPath(body, "error")); reason != "" {
		return true, reason
	}
	return false, ""
}

func ackFromName(name string) (int, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "SERVER_ACK", "SENT":
		return 1, true
	case "DELIVERY_ACK", "DELIVERED":
		return 2, true
	case "READ", "SEEN":
		return 3, true
	}
	return 0, false
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// getPath walks nested maps by key, returning nil on any miss.
func getPath(v any, path ...string) any {
	cur := v
	for _, k := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

// firstString returns the first candidate that is a non-empty string.
func firstString(candidates ...any) string {
	for _, c := range candidates {
		if s, ok := c.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstNumber returns the first candidate that is numeric. JSON decoding
// yields float64; ints cover hand-built test payloads.
func firstNumber(candidates ...any) (float64, bool) {
	for _, c := range candidates {
		switch n := c.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
	}
	return 0, false
}

// asBool returns the first candidate that is a bool, or false.
func asBool(candidates ...any) bool {
	for _, c := range candidates {
		if b, ok := c.(bool); ok {
			return b
		}
	}
	return false
}
