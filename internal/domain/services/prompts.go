package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
)

const extractorPreamble = `You read one segment of an interactive story and extract structured changes to the story world.
Only report what the segment states or clearly implies. Refer to existing entities by the exact names listed under "Known entities".
Return ONLY a valid JSON object, no other text.`

const summaryPrompt = `Summarize the segment in two or three sentences, in the past tense, from the protagonist's point of view.
Also report where the protagonist is at the end of the segment and which named characters are present.

Output:
{"segment_summary": "...", "current_location_ref": "location name or empty", "key_npcs_present": ["name", ...]}`

const protagonistStatePrompt = `Report changes to the protagonist's condition and belongings.
- gauge_changes: gauge is one of energy, morale, health; delta is a signed number.
- credit_transactions: amount is a signed integer, negative for spending.
- inventory_changes: action is one of acquire, lose, use. Use object_ref for a known object; for a new object
  give new_object {"entity_type": "object", "name": "...", "data": {...}} instead.
- entities_updated: attribute changes on the protagonist, such as mood or occupation.

Output:
{"gauge_changes": [], "credit_transactions": [], "inventory_changes": [], "entities_updated": []}`

const entitiesPrompt = `Report characters, locations, organizations and AIs that appear for the first time, and changed
attributes of known ones. Never re-create a known entity.
entity_type is one of character, location, organization, ai, object.
Attributes are flat key/value pairs such as occupation, mood, description, appearance, personality, atmosphere.

Output:
{"entities_created": [{"entity_type": "character", "name": "...", "data": {"aliases": [], "attributes": {}}}],
 "entities_updated": [{"entity_ref": "...", "attributes_changed": [{"key": "...", "value": "..."}]}]}`

const objectsPrompt = `The protagonist acquired the objects listed under "Objects to describe". Create each of them.

Output:
{"entities_created": [{"entity_type": "object", "name": "...", "data": {"attributes": {"description": "...", "value": 0}}}]}`

const factsPrompt = `Extract the notable facts of the segment.
- fact_type: action, dialogue, discovery, encounter, decision, state_change, revelation, transaction
- domain: personal, social, professional, romantic, financial, world
- importance: 1 (trivia) to 5 (life changing)
- participants: at least one, each {"entity_ref": "name", "role": "actor|target|witness|mentioned"}

Output:
{"facts": [{"fact_type": "...", "domain": "...", "description": "...", "location_ref": "", "importance": 3,
  "participants": [{"entity_ref": "...", "role": "actor"}]}]}`

const relationsPrompt = `Report relations that start and relation levels that change.
relation_type is one of knows, friend_of, romantic, family, rival, enemy, colleague_of, employed_by, works_at,
member_of, manages, lives_at, frequents, located_in, connected_to, owns.
Social relations carry {"social": {"level": 0-10, "context": "..."}}; levels only change by new_level.

Output:
{"relations_created": [{"relation": {"source_ref": "...", "target_ref": "...", "relation_type": "...", "social": {"level": 3}}}],
 "relations_updated": [{"source_ref": "...", "target_ref": "...", "relation_type": "...", "new_level": 5}]}`

const commitmentsPrompt = `Report narrative promises the story makes, promises it pays off, and events that are planned.
commitment_type is one of foreshadowing, secret, setup, chekhov_gun, arc.
A resolved commitment repeats the description of an open commitment listed in the context.
planned_cycle is the cycle number the event is expected at.

Output:
{"commitments_created": [{"commitment_type": "...", "description": "...", "deadline_cycle": null}],
 "commitments_resolved": [{"description": "...", "resolution": "..."}],
 "events_scheduled": [{"title": "...", "description": "...", "planned_cycle": 0, "location_ref": "", "participant_refs": []}]}`

var subtaskPrompts = map[Subtask]string{
	SubtaskSummary:          summaryPrompt,
	SubtaskProtagonistState: protagonistStatePrompt,
	SubtaskEntities:         entitiesPrompt,
	SubtaskObjects:          objectsPrompt,
	SubtaskFacts:            factsPrompt,
	SubtaskRelations:        relationsPrompt,
	SubtaskCommitments:      commitmentsPrompt,
}

// subtaskRequest builds the generation request for one subtask. known is the
// entity list visible to the subtask, which grows between phases.
func subtaskRequest(task Subtask, in *PipelineInput, known, objects []string) ports.GenerationRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "Current cycle: %d\n", in.Cycle)
	if in.LocationRef != "" {
		fmt.Fprintf(&b, "Current location: %s\n", in.LocationRef)
	}
	if len(in.NPCsPresent) > 0 {
		fmt.Fprintf(&b, "Characters present: %s\n", strings.Join(in.NPCsPresent, ", "))
	}
	if len(known) > 0 {
		fmt.Fprintf(&b, "Known entities: %s\n", strings.Join(known, ", "))
	}
	if len(objects) > 0 {
		fmt.Fprintf(&b, "Objects to describe: %s\n", strings.Join(objects, ", "))
	}
	b.WriteString("\nSegment:\n")
	b.WriteString(in.Narrative)

	return ports.GenerationRequest{
		Task:   string(task),
		System: extractorPreamble + "\n\n" + subtaskPrompts[task],
		User:   b.String(),
		JSON:   true,
	}
}

const narratorPrompt = `You are the narrator of an interactive story set in a near-future city.
Continue the story in the second person from the protagonist's point of view, in two to four paragraphs.
Stay consistent with the world state below. Keep open commitments in mind and let planned events happen on their cycle.
Do not list choices and do not speak for the protagonist beyond what the player wrote.`

// narrationRequest renders the context snapshot and the player's input into
// a prose generation request.
func narrationRequest(snapshot *entities.ContextSnapshot, playerInput string) (ports.GenerationRequest, error) {
	state, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return ports.GenerationRequest{}, fmt.Errorf("encoding context: %w", err)
	}
	user := fmt.Sprintf("World state:\n%s\n\nPlayer: %s", state, strings.TrimSpace(playerInput))
	return ports.GenerationRequest{
		Task:   "narrate",
		System: narratorPrompt,
		User:   user,
	}, nil
}

const worldPrompt = `You design the starting world of an interactive story. Invent a protagonist, the places they move
between, the people and organizations around them, a few objects they own, and the relations that tie them together.
Plant at least two commitments and one scheduled event for the first cycles.

Return ONLY a valid JSON object with keys: protagonist, ai, locations, characters, organizations, objects,
relations, commitments, events, start_location, summary.
Each entity is {"entity_type": "...", "name": "...", "data": {"aliases": [], "attributes": {}, "details": {}}}.
Relations use {"source_ref", "target_ref", "relation_type"} with an optional category object (social, professional,
spatial, ownership). Events use {"title", "description", "planned_cycle", "location_ref", "participant_refs"}.`

func worldRequest(premise string) ports.GenerationRequest {
	user := "Premise: " + strings.TrimSpace(premise)
	if strings.TrimSpace(premise) == "" {
		user = "Premise: choose one."
	}
	return ports.GenerationRequest{
		Task:   "world",
		System: worldPrompt,
		User:   user,
		JSON:   true,
	}
}
