package schedule

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// AlertJobID is deterministic over (owner, kind, candidate second). Two specs
// that differ only in title, description or recurrence collide and the later
// registration replaces the earlier one.
func AlertJobID(spec AlertScheduleSpec) string {
	spec.Normalize()
	return "alert:" + spec.OwnerID + ":" + string(spec.Kind) + ":" + strconv.FormatInt(spec.Candidate().Unix(), 10)
}

// ReportJobID is deterministic over (owner, kind, cron, title, recipients).
// Recipient order does not matter. The 64-bit FNV-1a digest can collide in
// principle; a collision replaces the other owner's job only if owner and
// kind also match.
func ReportJobID(spec ReportScheduleSpec) string {
	spec.Normalize()
	rcpt := append([]string(nil), spec.Recipients...)
	sort.Strings(rcpt)

	h := fnv.New64a()
	_, _ = h.Write([]byte(spec.Cron))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(spec.Title))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strings.Join(rcpt, ",")))
	return "report:" + spec.OwnerID + ":" + string(spec.Kind) + ":" + strconv.FormatUint(h.Sum64(), 16)
}
