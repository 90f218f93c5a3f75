package campaign

import (
	"strings"
	"time"

	"github.com/forPelevin/gomoji"
	"github.com/rivo/uniseg"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/phone"
)

// RowSeed describes one message row to persist for a generated job. Seeds are
// returned in the same order as the jobs so the caller can assign the ids the
// store hands back.
type RowSeed struct {
	Number      string
	Text        string
	ScheduledAt time.Time
}

// TrimPool trims every template, drops empties and drops near-duplicates that
// differ only by emoji decoration. Variation pools exist to dodge spam
// detection; two variants that read identically once emojis are stripped are
// not real variation.
func TrimPool(pool []string) []string {
	out := make([]string, 0, len(pool))
	seen := make(map[string]struct{}, len(pool))
	for _, tpl := range pool {
		tpl = strings.TrimSpace(tpl)
		if tpl == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(gomoji.RemoveEmojis(tpl)))
		if key == "" {
			// emoji-only template: dedupe on the literal text
			key = strings.ToLower(tpl)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tpl)
	}
	return out
}

// ExpandJobs produces one job per contact, per scheduled moment (start plus
// each cadence day offset), per template in the pool. Contacts whose number
// fails canonicalization are skipped silently. Placeholders resolve against
// the contact's raw fields; the destination always uses the canonical number.
func ExpandJobs(contacts []Contact, pool []string, cadenceDays []int, start time.Time) ([]*Job, []RowSeed) {
	var jobs []*Job
	var seeds []RowSeed

	for _, c := range contacts {
		to := phone.Canonicalize(c.Number)
		if to == "" {
			continue
		}

		moments := make([]time.Time, 0, 1+len(cadenceDays))
		moments = append(moments, start)
		for _, d := range cadenceDays {
			moments = append(moments, start.Add(time.Duration(d)*24*time.Hour))
		}

		for _, when := range moments {
			for _, tpl := range pool {
				text := applyPlaceholders(tpl, c)
				jobs = append(jobs, &Job{To: to, Text: text, ScheduledAt: when})
				seeds = append(seeds, RowSeed{Number: to, Text: text, ScheduledAt: when})
			}
		}
	}
	return jobs, seeds
}

// applyPlaceholders substitutes {{nome}}/{{name}} and {{numero}}/{{number}}.
// Unknown placeholders are left literally in the text.
func applyPlaceholders(tpl string, c Contact) string {
	r := strings.NewReplacer(
		"{{nome}}", c.Name,
		"{{name}}", c.Name,
		"{{numero}}", c.Number,
		"{{number}}", c.Number,
	)
	return r.Replace(tpl)
}

// Preview truncates a message to at most max grapheme clusters for log
// output, so multi-byte emoji are never split mid-cluster.
func Preview(s string, max int) string {
	if max <= 0 || uniseg.GraphemeClusterCount(s) <= max {
		return s
	}
	g := uniseg.NewGraphemes(s)
	var b strings.Builder
	for i := 0; i < max && g.Next(); i++ {
		b.WriteString(g.Str())
	}
	return b.String() + "…"
}
