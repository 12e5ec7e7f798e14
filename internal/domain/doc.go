// Package domain models provincial highway traffic-condition announcements.
//
// # Data Sources
//
// Records originate from dozens of provincial government and public data
// feeds, each with its own schema, transport, and quirks: JSON APIs behind
// session cookies or bearer tokens, paginated envelopes, and bulletin pages.
// Source adapters (internal/source) fetch raw rows; this package normalizes
// them into the common CanonicalEvent shape via declarative field mappings.
//
// # Field Conventions
//
// Optional strings and timestamps are pointers. An upstream empty string is
// normalized to nil before it reaches storage; "" never leaves this package
// in an optional field.
//
// Publish time derivation varies per source and follows a fixed priority:
// an explicit timestamp field first, then a timestamp embedded in a record
// identifier (first 14 digits, yyyymmddHHMMSS), then a fallback field.
// The priority order is part of each source's FieldMapping, not code.
//
// Road identifiers follow the national trunk-network scheme: a letter G
// (national) or S (provincial) plus digits, followed by the highway's
// Chinese name, e.g. "G2001济南绕城高速". Sources that omit road fields get
// them back-filled by scanning the announcement text for the first such
// reference; see [ExtractFirstHighway].
//
// # Taxonomies
//
// EventType is the fixed five-way incident taxonomy (maintenance, accident,
// control, weather, other) with Chinese display labels matching the store.
// Bypass sources map their free-text categories onto it with a keyword
// table; classifier-gated sources receive labels from the external workflow.
//
// EventCategory separates Realtime incidents from Plan disruptions. It stays
// CategoryNone until either the workflow service assigns it or a per-source
// policy rule (see Rules) derives it from the publish/start/end dates.
//
// # Identity
//
// Traffic events are content-addressed: ID = hash(publish_time + content),
// so replaying a feed produces identical IDs and persistence can rely on
// ON CONFLICT DO NOTHING instead of cross-worker coordination. Weather
// warnings hash their content alone. The (province, publish_time) pair is a
// coarser key used only for pre-classification existence checks.
package domain
