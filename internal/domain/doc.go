// Package domain models the Bison Futé DATEX II road-event feed and the
// filtering pipeline that turns it into exportable events.
//
// # Data Source
//
// Road events originate from the Bison Futé open-data publication for the
// national road network (RRN), a SOAP-wrapped DATEX II v2.2.0 XML document
// republished continuously at a fixed URL. Each document is a full snapshot:
// a payloadPublication holding situation elements, each situation grouping
// one or more situationRecord elements under a shared identifier and an
// overallSeverity classification.
//
// # Feed Conventions
//
// Source attribution:
//
//	The responsible road authority is embedded as free text in the record's
//	sourceIdentification element, often alongside district or CEI tokens:
//	"DIR Ouest / CEI de Rennes". Operator filtering is therefore a substring
//	match ("DIR Ouest", "DIRO"), not field equality.
//
// Record typing:
//
//	The concrete record class is carried by the xsi:type attribute as a
//	QName, e.g. "ns2:Accident" or "ns2:EnvironmentalObstruction". The
//	namespace prefix is stripped before use. Flooding records additionally
//	carry an environmentalObstructionType element ("flood", "flashFloods");
//	when it is absent the classification falls back to a case-insensitive
//	keyword scan over the serialized record and the result is tagged as
//	inferred rather than authoritative.
//
// Timestamps:
//
//	overallStartTime / overallEndTime are local ISO-8601 values with a
//	+01:00 or +02:00 offset (France, standard vs daylight time). The
//	historical behavior strips these fixed suffixes and compares naive
//	local times. This is a known, documented approximation; see
//	[parseLocalTimestamp].
//
// Geometry:
//
//	Coordinates appear at type-dependent depths under groupOfLocations.
//	The first latitude and first longitude descendants win. Records
//	missing either coordinate cannot be mapped and are dropped, counted
//	under sans_coords.
//
// Severity:
//
//	overallSeverity is an open string enum ("low", "medium", "high",
//	"highest", "unknown"). Situations without one default to "medium".
//
// # Status derivation
//
// An event is active when the reference instant has not passed its end time
// (events without an end time stay open). The generic preset keeps only
// active, already-started events; the flooding preset keeps finished events
// too and exposes is_active plus a status label ("en_cours" / "termine").
package domain
