package model

import (
	"sort"
	"time"
)

// Source identifies one upstream article that contributed to a
// cluster.
type Source struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	URL          string `json:"url,omitempty"`
	ArticleURL   string `json:"articleUrl,omitempty"`
	ArticleTitle string `json:"articleTitle,omitempty"`
	SiteURL      string `json:"siteUrl,omitempty"`
}

// ClusterSummary is the client-side view of one content cluster. Field
// names follow the content API wire format. The short summary fields
// (headline, topics, sources) are always present on a well-formed
// record; the long-form detail fields are populated only once a
// generation request has resolved.
//
// Records are treated as immutable values: every receipt goes through
// Normalize, and state changes replace whole records rather than
// editing fields in place.
type ClusterSummary struct {
	ID         string `json:"id"`
	Headline   string `json:"headline,omitempty"`
	HeadlineJa string `json:"headlineJa,omitempty"`

	SummaryLong string   `json:"summaryLong,omitempty"`
	DiffPoints  []string `json:"diffPoints,omitempty"`

	Topics          []string `json:"topics,omitempty"`
	Importance      string   `json:"importance,omitempty"`
	FactCheckStatus string   `json:"factCheckStatus,omitempty"`
	Languages       []string `json:"languages,omitempty"`
	Sources         []Source `json:"sources,omitempty"`

	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	PublishedAt string    `json:"publishedAt,omitempty"`

	DetailStatus        DetailStatus `json:"detailStatus,omitempty"`
	DetailRequestedAt   *time.Time   `json:"detailRequestedAt,omitempty"`
	DetailReadyAt       *time.Time   `json:"detailReadyAt,omitempty"`
	DetailExpiresAt     *time.Time   `json:"detailExpiresAt,omitempty"`
	DetailFailedAt      *time.Time   `json:"detailFailedAt,omitempty"`
	DetailFailureReason string       `json:"detailFailureReason,omitempty"`
}

// HasDetailText reports whether the record carries renderable
// long-form text under a status that permits it.
func (c ClusterSummary) HasDetailText() bool {
	return c.SummaryLong != "" &&
		(c.DetailStatus == StatusReady || c.DetailStatus == StatusStale)
}

// Normalize returns a copy of c with its detail fields made internally
// consistent:
//
//   - the status string is parsed leniently (unknown values become
//     partial),
//   - ready records whose expiry has passed are demoted to stale,
//   - long-form text is cleared under any status that must not carry
//     it,
//   - a zero UpdatedAt falls back to CreatedAt so merge tie-breaks
//     stay meaningful.
//
// The input is never mutated. Normalize is idempotent: applying it to
// its own output yields an identical record.
func Normalize(c ClusterSummary, now time.Time) ClusterSummary {
	out := c
	out.DetailStatus = ParseDetailStatus(string(c.DetailStatus))

	if out.DetailStatus == StatusReady && out.DetailExpiresAt != nil &&
		now.After(*out.DetailExpiresAt) {

		out.DetailStatus = StatusStale
	}

	if out.DetailStatus != StatusReady && out.DetailStatus != StatusStale {
		out.SummaryLong = ""
		out.DiffPoints = nil
	}

	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = out.CreatedAt
	}

	return out
}

// Supersedes reports whether incoming should replace existing when
// both records describe the same cluster. Higher status priority wins
// outright; on equal priority a strictly newer UpdatedAt wins; on a
// full tie the incoming record does not override, which makes applying
// the same update twice a no-op.
//
// Regeneration and retry deliberately bypass this rule: they are user
// actions written directly by the coordinator, not reconciliations of
// two observations.
func Supersedes(existing, incoming ClusterSummary) bool {
	ep, ip := existing.DetailStatus.Priority(), incoming.DetailStatus.Priority()
	if ip != ep {
		return ip > ep
	}

	return incoming.UpdatedAt.After(existing.UpdatedAt)
}

// SortByRecency orders records newest-first by UpdatedAt, matching the
// listing order served by the content API.
func SortByRecency(records []ClusterSummary) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
}
