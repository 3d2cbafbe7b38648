// Package timeline assembles case events into a chronological incident
// timeline for reporting.
package timeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"iris-triage/internal/schema"
)

// Kind identifies what an event records. The declaration order is also
// the tie-break precedence when events share a timestamp: creation sorts
// before modification, which sorts before discovery and detection.
type Kind int

const (
	ArtifactCreated Kind = iota
	ArtifactModified
	EvidenceDiscovered
	ThreatDetected
)

var kindNames = map[Kind]string{
	ArtifactCreated:    "artifact_created",
	ArtifactModified:   "artifact_modified",
	EvidenceDiscovered: "evidence_discovered",
	ThreatDetected:     "threat_detected",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one entry on the assembled timeline.
type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Detail    string    `json:"detail,omitempty"`
	SubjectID uuid.UUID `json:"subject_id"`
	Severity  int       `json:"severity,omitempty"`
}

// Assemble builds a timeline from a case's artifacts, evidence, and
// findings. Events are ordered by timestamp; events at the same instant
// order by kind precedence, and events equal on both keep their input
// order. The result is a fresh slice every call; callers may reorder or
// trim it without affecting the inputs.
func Assemble(artifacts []schema.Artifact, evidence []schema.Evidence, findings []schema.Finding) []Event {
	events := make([]Event, 0, 2*len(artifacts)+len(evidence)+len(findings))

	for _, a := range artifacts {
		if !a.CreatedAt.IsZero() {
			events = append(events, Event{
				Kind:      ArtifactCreated,
				Timestamp: a.CreatedAt,
				Subject:   a.Name,
				SubjectID: a.ID,
			})
		}
		// Modification at the creation instant still gets its own event;
		// kind precedence orders it after the creation entry.
		if !a.ModifiedAt.IsZero() {
			events = append(events, Event{
				Kind:      ArtifactModified,
				Timestamp: a.ModifiedAt,
				Subject:   a.Name,
				SubjectID: a.ID,
			})
		}
	}
	for _, ev := range evidence {
		events = append(events, Event{
			Kind:      EvidenceDiscovered,
			Timestamp: ev.DiscoveredAt,
			Subject:   ev.Name,
			Detail:    ev.Source,
			SubjectID: ev.ID,
			Severity:  ev.Severity,
		})
	}
	for _, f := range findings {
		events = append(events, Event{
			Kind:      ThreatDetected,
			Timestamp: f.MatchedAt,
			Subject:   f.RuleName,
			SubjectID: f.ArtifactID,
			Severity:  f.Severity,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].Kind < events[j].Kind
	})
	return events
}
