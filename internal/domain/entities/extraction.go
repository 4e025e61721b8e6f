package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ExtractionPayload is the structured result of reading one narrative
// segment: every world mutation the segment implies. Field names are the
// wire contract shared with the extractors.
type ExtractionPayload struct {
	Cycle               int                  `json:"cycle"`
	CurrentLocationRef  string               `json:"current_location_ref"`
	Facts               []FactRecord         `json:"facts"`
	EntitiesCreated     []EntityCreated      `json:"entities_created"`
	EntitiesUpdated     []EntityUpdated      `json:"entities_updated"`
	RelationsCreated    []RelationCreated    `json:"relations_created"`
	RelationsUpdated    []RelationUpdated    `json:"relations_updated"`
	GaugeChanges        []GaugeChange        `json:"gauge_changes"`
	CreditTransactions  []CreditChange       `json:"credit_transactions"`
	InventoryChanges    []InventoryChange    `json:"inventory_changes"`
	CommitmentsCreated  []CommitmentCreated  `json:"commitments_created"`
	CommitmentsResolved []CommitmentResolved `json:"commitments_resolved"`
	EventsScheduled     []EventScheduled     `json:"events_scheduled"`
	SegmentSummary      string               `json:"segment_summary"`
	KeyNPCsPresent      []string             `json:"key_npcs_present"`
}

// ParticipantRef names a fact participant before resolution.
type ParticipantRef struct {
	EntityRef string `json:"entity_ref"`
	Role      string `json:"role"`
}

// FactRecord is a fact as produced by an extractor.
type FactRecord struct {
	Cycle        *int             `json:"cycle,omitempty"`
	FactType     string           `json:"fact_type"`
	Domain       string           `json:"domain"`
	Description  string           `json:"description"`
	LocationRef  string           `json:"location_ref,omitempty"`
	Importance   *int             `json:"importance,omitempty"`
	Participants []ParticipantRef `json:"participants"`
	SemanticKey  string           `json:"semantic_key,omitempty"`
}

// EntityData is the type-specific blob of a newly created entity.
type EntityData struct {
	Aliases      []string         `json:"aliases,omitempty"`
	Known        *bool            `json:"known,omitempty"`
	UnknownAlias string           `json:"unknown_alias,omitempty"`
	Attributes   map[string]Value `json:"attributes,omitempty"`
	Details      json.RawMessage  `json:"details,omitempty"`
}

// EntityCreated requests a new entity.
type EntityCreated struct {
	EntityType string     `json:"entity_type"`
	Name       string     `json:"name"`
	Data       EntityData `json:"data"`
}

// AttributeChange is one key/value write on an existing entity.
type AttributeChange struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// EntityUpdated requests attribute writes on an existing entity.
type EntityUpdated struct {
	EntityRef         string            `json:"entity_ref"`
	AttributesChanged []AttributeChange `json:"attributes_changed"`
}

// RelationSpec describes a relation with its category sub-object.
type RelationSpec struct {
	SourceRef          string             `json:"source_ref"`
	TargetRef          string             `json:"target_ref"`
	RelationType       string             `json:"relation_type"`
	KnownByProtagonist *bool              `json:"known_by_protagonist,omitempty"`
	Social             *SocialAttrs       `json:"social,omitempty"`
	Professional       *ProfessionalAttrs `json:"professional,omitempty"`
	Spatial            *SpatialAttrs      `json:"spatial,omitempty"`
	Ownership          *OwnershipAttrs    `json:"ownership,omitempty"`
}

// Attributes returns the category extension carried by the relation.
func (s RelationSpec) Attributes() RelationAttributes {
	return RelationAttributes{
		Social:       s.Social,
		Professional: s.Professional,
		Spatial:      s.Spatial,
		Ownership:    s.Ownership,
	}
}

// RelationCreated requests a new relation.
type RelationCreated struct {
	Cycle    *int         `json:"cycle,omitempty"`
	Relation RelationSpec `json:"relation"`
}

// RelationUpdated changes the level of an existing social relation.
type RelationUpdated struct {
	SourceRef    string `json:"source_ref"`
	TargetRef    string `json:"target_ref"`
	RelationType string `json:"relation_type"`
	NewLevel     *int   `json:"new_level,omitempty"`
}

// GaugeChange applies a delta to one of the protagonist's gauges.
type GaugeChange struct {
	Gauge  string  `json:"gauge"`
	Delta  float64 `json:"delta"`
	Reason string  `json:"reason,omitempty"`
}

// CreditChange is a signed credit movement for the protagonist.
type CreditChange struct {
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

// InventoryAction is what happened to an inventory item.
type InventoryAction string

const (
	InventoryAcquire InventoryAction = "acquire"
	InventoryLose    InventoryAction = "lose"
	InventoryUse     InventoryAction = "use"
)

// InventoryChange moves an object in or out of the protagonist's inventory.
type InventoryChange struct {
	Action        string         `json:"action"`
	ObjectRef     string         `json:"object_ref,omitempty"`
	NewObject     *EntityCreated `json:"new_object,omitempty"`
	QuantityDelta int            `json:"quantity_delta"`
	Reason        string         `json:"reason,omitempty"`
}

// CommitmentCreated opens a narrative promise.
type CommitmentCreated struct {
	CommitmentType string `json:"commitment_type"`
	Description    string `json:"description"`
	DeadlineCycle  *int   `json:"deadline_cycle,omitempty"`
}

// CommitmentResolved pays off a promise matched by description.
type CommitmentResolved struct {
	Description string `json:"description"`
	Resolution  string `json:"resolution"`
}

// EventScheduled plans an event.
type EventScheduled struct {
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	PlannedCycle    int      `json:"planned_cycle"`
	PlannedTime     string   `json:"planned_time,omitempty"`
	LocationRef     string   `json:"location_ref,omitempty"`
	ParticipantRefs []string `json:"participant_refs,omitempty"`
}

// Payload field names, used in item errors.
const (
	FieldFacts               = "facts"
	FieldEntitiesCreated     = "entities_created"
	FieldEntitiesUpdated     = "entities_updated"
	FieldRelationsCreated    = "relations_created"
	FieldRelationsUpdated    = "relations_updated"
	FieldGaugeChanges        = "gauge_changes"
	FieldCreditTransactions  = "credit_transactions"
	FieldInventoryChanges    = "inventory_changes"
	FieldCommitmentsCreated  = "commitments_created"
	FieldCommitmentsResolved = "commitments_resolved"
	FieldEventsScheduled     = "events_scheduled"
	FieldSegmentSummary      = "segment_summary"
	FieldCurrentLocation     = "current_location_ref"
	FieldCycle               = "cycle"
)

// ItemError reports a problem with one item of a payload list. Index is -1
// for scalar fields.
type ItemError struct {
	Field string `json:"field"`
	Index int    `json:"index"`
	Err   error  `json:"-"`
}

func (e *ItemError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s[%d]: %v", e.Field, e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// MarshalJSON includes the message of the wrapped error.
func (e *ItemError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Field string `json:"field"`
		Index int    `json:"index"`
		Error string `json:"error"`
	}{e.Field, e.Index, e.Err.Error()})
}

// ValidationError collects every item error found in a payload.
type ValidationError struct {
	Items []*ItemError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		msgs = append(msgs, item.Error())
	}
	return "invalid extraction payload: " + strings.Join(msgs, "; ")
}

// StampCycle fills the cycle of facts and new relations that lack one.
func (p *ExtractionPayload) StampCycle(cycle int) {
	p.Cycle = cycle
	for i := range p.Facts {
		if p.Facts[i].Cycle == nil {
			c := cycle
			p.Facts[i].Cycle = &c
		}
	}
	for i := range p.RelationsCreated {
		if p.RelationsCreated[i].Cycle == nil {
			c := cycle
			p.RelationsCreated[i].Cycle = &c
		}
	}
}

// Validate checks the whole payload and returns a *ValidationError listing
// every offending item, or nil.
func (p *ExtractionPayload) Validate() error {
	var items []*ItemError
	add := func(field string, index int, err error) {
		if err != nil {
			items = append(items, &ItemError{Field: field, Index: index, Err: err})
		}
	}

	if p.Cycle < 1 {
		add(FieldCycle, -1, fmt.Errorf("%w: %d", ErrInvalidCycle, p.Cycle))
	}
	if strings.TrimSpace(p.SegmentSummary) == "" {
		add(FieldSegmentSummary, -1, errors.New("segment summary is required"))
	}
	for i, f := range p.Facts {
		add(FieldFacts, i, f.Validate())
	}
	for i, e := range p.EntitiesCreated {
		add(FieldEntitiesCreated, i, e.Validate())
	}
	for i, e := range p.EntitiesUpdated {
		add(FieldEntitiesUpdated, i, e.Validate())
	}
	for i, r := range p.RelationsCreated {
		add(FieldRelationsCreated, i, r.Validate())
	}
	for i, r := range p.RelationsUpdated {
		add(FieldRelationsUpdated, i, r.Validate())
	}
	for i, g := range p.GaugeChanges {
		add(FieldGaugeChanges, i, g.Validate())
	}
	for i, c := range p.CreditTransactions {
		add(FieldCreditTransactions, i, c.Validate())
	}
	for i, c := range p.InventoryChanges {
		add(FieldInventoryChanges, i, c.Validate())
	}
	for i, c := range p.CommitmentsCreated {
		add(FieldCommitmentsCreated, i, c.Validate())
	}
	for i, c := range p.CommitmentsResolved {
		add(FieldCommitmentsResolved, i, c.Validate())
	}
	for i, e := range p.EventsScheduled {
		add(FieldEventsScheduled, i, e.Validate())
	}

	if len(items) > 0 {
		return &ValidationError{Items: items}
	}
	return nil
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}

// Validate checks a single fact record.
func (f FactRecord) Validate() error {
	if f.Cycle == nil || *f.Cycle < 1 {
		return fmt.Errorf("%w: fact cycle missing", ErrInvalidCycle)
	}
	if !FactType(f.FactType).IsValid() {
		return fmt.Errorf("%w: fact_type %q", ErrInvalidValue, f.FactType)
	}
	if !FactDomain(f.Domain).IsValid() {
		return fmt.Errorf("%w: domain %q", ErrInvalidValue, f.Domain)
	}
	if err := required("description", f.Description); err != nil {
		return err
	}
	if f.Importance == nil {
		return fmt.Errorf("%w: importance is required", ErrInvalidValue)
	}
	if *f.Importance < ImportanceMin || *f.Importance > ImportanceMax {
		return fmt.Errorf("%w: importance %d out of range", ErrInvalidValue, *f.Importance)
	}
	for _, p := range f.Participants {
		if err := required("participant entity_ref", p.EntityRef); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single entity creation.
func (e EntityCreated) Validate() error {
	t, err := ParseEntityType(e.EntityType)
	if err != nil {
		return err
	}
	if err := required("name", e.Name); err != nil {
		return err
	}
	if _, err := DecodeDetails(t, e.Data.Details); err != nil {
		return err
	}
	for key, v := range e.Data.Attributes {
		if _, _, err := NormalizeAttribute(t, key, v); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single entity update. Key membership is checked at apply
// time, once the entity's type is known.
func (e EntityUpdated) Validate() error {
	if err := required("entity_ref", e.EntityRef); err != nil {
		return err
	}
	if len(e.AttributesChanged) == 0 {
		return errors.New("attributes_changed is empty")
	}
	for _, c := range e.AttributesChanged {
		if err := required("attribute key", c.Key); err != nil {
			return err
		}
		if c.Value.IsZero() {
			return fmt.Errorf("%w: %s has no value", ErrInvalidValue, c.Key)
		}
	}
	return nil
}

// Validate checks a single relation creation.
func (r RelationCreated) Validate() error {
	if r.Cycle == nil || *r.Cycle < 1 {
		return fmt.Errorf("%w: relation cycle missing", ErrInvalidCycle)
	}
	if err := required("source_ref", r.Relation.SourceRef); err != nil {
		return err
	}
	if err := required("target_ref", r.Relation.TargetRef); err != nil {
		return err
	}
	t, err := ParseRelationType(r.Relation.RelationType)
	if err != nil {
		return err
	}
	_, err = r.Relation.Attributes().ForCategory(t.Category())
	return err
}

// Validate checks a single relation level update.
func (r RelationUpdated) Validate() error {
	if err := required("source_ref", r.SourceRef); err != nil {
		return err
	}
	if err := required("target_ref", r.TargetRef); err != nil {
		return err
	}
	t, err := ParseRelationType(r.RelationType)
	if err != nil {
		return err
	}
	if t.Category() != CategorySocial {
		return fmt.Errorf("%w: %s has no level", ErrInvalidRelationType, t)
	}
	if r.NewLevel == nil {
		return fmt.Errorf("%w: new_level is required", ErrInvalidValue)
	}
	return nil
}

// Validate checks a single gauge change.
func (g GaugeChange) Validate() error {
	_, err := ParseGauge(g.Gauge)
	return err
}

// Validate checks a single credit movement.
func (c CreditChange) Validate() error {
	if c.Amount == 0 {
		return fmt.Errorf("%w: amount is zero", ErrInvalidValue)
	}
	return required("description", c.Description)
}

// NewObjectSpec returns the object to create on acquire, typed as an
// object when the payload leaves entity_type empty.
func (c InventoryChange) NewObjectSpec() (EntityCreated, bool) {
	if c.NewObject == nil {
		return EntityCreated{}, false
	}
	spec := *c.NewObject
	if strings.TrimSpace(spec.EntityType) == "" {
		spec.EntityType = string(EntityObject)
	}
	return spec, true
}

// Validate checks a single inventory change.
func (c InventoryChange) Validate() error {
	switch InventoryAction(NormalizeName(c.Action)) {
	case InventoryAcquire:
		if spec, ok := c.NewObjectSpec(); ok {
			return spec.Validate()
		}
		return required("object_ref or new_object", c.ObjectRef)
	case InventoryLose, InventoryUse:
		return required("object_ref", c.ObjectRef)
	default:
		return fmt.Errorf("%w: inventory action %q", ErrInvalidValue, c.Action)
	}
}

// Validate checks a single commitment creation.
func (c CommitmentCreated) Validate() error {
	if _, err := ParseCommitmentType(c.CommitmentType); err != nil {
		return err
	}
	return required("description", c.Description)
}

// Validate checks a single commitment resolution.
func (c CommitmentResolved) Validate() error {
	return required("description", c.Description)
}

// Validate checks a single scheduled event.
func (e EventScheduled) Validate() error {
	if err := required("title", e.Title); err != nil {
		return err
	}
	if e.PlannedCycle < 1 {
		return fmt.Errorf("%w: planned_cycle %d", ErrInvalidCycle, e.PlannedCycle)
	}
	return nil
}
