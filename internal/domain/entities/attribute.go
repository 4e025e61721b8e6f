package entities

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// AttributeKey names an entity attribute. The set is closed per entity type.
type AttributeKey string

const (
	AttrDescription           AttributeKey = "description"
	AttrAppearance            AttributeKey = "appearance"
	AttrPersonality           AttributeKey = "personality"
	AttrOccupation            AttributeKey = "occupation"
	AttrBackstory             AttributeKey = "backstory"
	AttrMood                  AttributeKey = "mood"
	AttrStatus                AttributeKey = "status"
	AttrAge                   AttributeKey = "age"
	AttrSkills                AttributeKey = "skills"
	AttrEnergy                AttributeKey = "energy"
	AttrMorale                AttributeKey = "morale"
	AttrHealth                AttributeKey = "health"
	AttrCredits               AttributeKey = "credits"
	AttrAtmosphere            AttributeKey = "atmosphere"
	AttrAccessible            AttributeKey = "accessible"
	AttrNotableFeatures       AttributeKey = "notable_features"
	AttrCondition             AttributeKey = "condition"
	AttrValue                 AttributeKey = "value"
	AttrEmotionalSignificance AttributeKey = "emotional_significance"
	AttrReputation            AttributeKey = "reputation"
	AttrInfluence             AttributeKey = "influence"
	AttrTrustLevel            AttributeKey = "trust_level"
)

// Attribute is one version of an entity attribute. The active version of a
// key has no EndCycle; older versions point at their replacement.
type Attribute struct {
	ID           string       `json:"id"`
	EntityID     string       `json:"entity_id"`
	Key          AttributeKey `json:"key"`
	Value        Value        `json:"value"`
	StartCycle   int          `json:"start_cycle"`
	EndCycle     *int         `json:"end_cycle,omitempty"`
	ClosedCycle  *int         `json:"closed_cycle,omitempty"` // cycle of the write that closed it
	SupersededBy string       `json:"superseded_by,omitempty"`
}

// Active reports whether this is the current version of the key.
func (a *Attribute) Active() bool {
	return a.EndCycle == nil
}

// Gauge is one of the protagonist's bounded meters.
type Gauge string

const (
	GaugeEnergy Gauge = "energy"
	GaugeMorale Gauge = "morale"
	GaugeHealth Gauge = "health"
)

const (
	GaugeMin = 0.0
	GaugeMax = 100.0
)

// ParseGauge validates a gauge name.
func ParseGauge(s string) (Gauge, error) {
	g := Gauge(NormalizeName(s))
	switch g {
	case GaugeEnergy, GaugeMorale, GaugeHealth:
		return g, nil
	}
	return "", fmt.Errorf("%w: unknown gauge %q", ErrInvalidValue, s)
}

// ClampGauge bounds a gauge value to [GaugeMin, GaugeMax].
func ClampGauge(v float64) float64 {
	return math.Max(GaugeMin, math.Min(GaugeMax, v))
}

type normalizer func(Value) (Value, error)

var attributeNormalizers = map[AttributeKey]normalizer{
	AttrDescription:           normalizeText,
	AttrAppearance:            normalizeText,
	AttrPersonality:           normalizeText,
	AttrOccupation:            normalizeLowerText,
	AttrBackstory:             normalizeText,
	AttrMood:                  synonymNormalizer(moodSynonyms),
	AttrStatus:                synonymNormalizer(statusSynonyms),
	AttrAge:                   numberNormalizer(0, 1000, false),
	AttrSkills:                normalizeSkills,
	AttrEnergy:                numberNormalizer(GaugeMin, GaugeMax, true),
	AttrMorale:                numberNormalizer(GaugeMin, GaugeMax, true),
	AttrHealth:                numberNormalizer(GaugeMin, GaugeMax, true),
	AttrCredits:               normalizeCredits,
	AttrAtmosphere:            normalizeText,
	AttrAccessible:            normalizeBool,
	AttrNotableFeatures:       normalizeList,
	AttrCondition:             synonymNormalizer(conditionSynonyms),
	AttrValue:                 numberNormalizer(0, math.MaxFloat64, false),
	AttrEmotionalSignificance: normalizeText,
	AttrReputation:            numberNormalizer(-100, 100, true),
	AttrInfluence:             numberNormalizer(0, 100, true),
	AttrTrustLevel:            numberNormalizer(0, 100, true),
}

var typeAttributes = map[EntityType][]AttributeKey{
	EntityProtagonist: {
		AttrDescription, AttrAppearance, AttrPersonality, AttrOccupation, AttrBackstory,
		AttrSkills, AttrEnergy, AttrMorale, AttrHealth, AttrCredits, AttrMood, AttrStatus,
	},
	EntityCharacter: {
		AttrDescription, AttrAppearance, AttrPersonality, AttrOccupation, AttrBackstory,
		AttrSkills, AttrMood, AttrStatus, AttrAge,
	},
	EntityLocation: {
		AttrDescription, AttrAtmosphere, AttrAccessible, AttrNotableFeatures, AttrStatus,
	},
	EntityObject: {
		AttrDescription, AttrCondition, AttrValue, AttrEmotionalSignificance, AttrStatus,
	},
	EntityOrganization: {
		AttrDescription, AttrReputation, AttrInfluence, AttrStatus,
	},
	EntityAI: {
		AttrDescription, AttrPersonality, AttrSkills, AttrMood, AttrStatus, AttrTrustLevel,
	},
}

// AllowedAttributes returns the attribute keys valid for t.
func AllowedAttributes(t EntityType) []AttributeKey {
	return typeAttributes[t]
}

// IsAllowedAttribute reports whether key belongs to t's vocabulary.
func IsAllowedAttribute(t EntityType, key AttributeKey) bool {
	for _, k := range typeAttributes[t] {
		if k == key {
			return true
		}
	}
	return false
}

// NormalizeAttribute validates key against t's vocabulary and canonicalizes
// the value. Errors wrap ErrInvalidAttributeForType or ErrInvalidValue.
func NormalizeAttribute(t EntityType, key string, v Value) (AttributeKey, Value, error) {
	k := AttributeKey(normalizeIdent(key))
	if !IsAllowedAttribute(t, k) {
		return "", Value{}, fmt.Errorf("%w: %s on %s", ErrInvalidAttributeForType, key, t)
	}
	if v.IsZero() {
		return "", Value{}, fmt.Errorf("%w: %s is empty", ErrInvalidValue, k)
	}
	normalized, err := attributeNormalizers[k](v)
	if err != nil {
		return "", Value{}, fmt.Errorf("normalizing %s: %w", k, err)
	}
	return k, normalized, nil
}

var (
	moodSynonyms = synonyms(map[string][]string{
		"happy":   {"joyful", "cheerful", "glad", "content", "elated"},
		"sad":     {"unhappy", "down", "melancholic", "depressed", "gloomy"},
		"angry":   {"furious", "mad", "irritated", "annoyed", "hostile"},
		"anxious": {"nervous", "worried", "stressed", "afraid", "scared", "tense"},
		"calm":    {"relaxed", "serene", "peaceful", "composed"},
		"neutral": {"indifferent", "ok", "fine", "normal"},
		"tired":   {"exhausted", "weary", "sleepy", "drained"},
	})
	statusSynonyms = synonyms(map[string][]string{
		"alive":       {"living", "active", "healthy"},
		"dead":        {"deceased", "killed", "died"},
		"missing":     {"disappeared", "lost", "absent", "vanished"},
		"injured":     {"wounded", "hurt"},
		"unconscious": {"asleep", "knocked out", "passed out"},
		"closed":      {"shut", "locked"},
		"open":        {"opened", "unlocked"},
	})
	conditionSynonyms = synonyms(map[string][]string{
		"new":       {"mint", "pristine", "brand new"},
		"good":      {"fine", "intact", "working", "functional"},
		"worn":      {"used", "scuffed", "old", "weathered"},
		"damaged":   {"broken", "cracked", "dented", "faulty"},
		"destroyed": {"ruined", "wrecked", "shattered"},
	})
)

func synonyms(groups map[string][]string) map[string]string {
	out := make(map[string]string)
	for canonical, words := range groups {
		out[canonical] = canonical
		for _, w := range words {
			out[w] = canonical
		}
	}
	return out
}

func normalizeText(v Value) (Value, error) {
	text := strings.Join(strings.Fields(v.String()), " ")
	if text == "" {
		return Value{}, fmt.Errorf("%w: empty text", ErrInvalidValue)
	}
	return StringValue(text), nil
}

func normalizeLowerText(v Value) (Value, error) {
	text, err := normalizeText(v)
	if err != nil {
		return Value{}, err
	}
	return StringValue(strings.ToLower(text.Str)), nil
}

func synonymNormalizer(table map[string]string) normalizer {
	return func(v Value) (Value, error) {
		text, err := normalizeLowerText(v)
		if err != nil {
			return Value{}, err
		}
		if canonical, ok := table[text.Str]; ok {
			return StringValue(canonical), nil
		}
		return text, nil
	}
}

func toNumber(v Value) (float64, error) {
	switch v.Kind {
	case KindNumber:
		return v.Num, nil
	case KindString:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v.Str), "%"))
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, v.Str)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: expected a number, got %s", ErrInvalidValue, v.Kind)
	}
}

func numberNormalizer(lo, hi float64, clamp bool) normalizer {
	return func(v Value) (Value, error) {
		n, err := toNumber(v)
		if err != nil {
			return Value{}, err
		}
		if clamp {
			return NumberValue(math.Max(lo, math.Min(hi, n))), nil
		}
		if n < lo || n > hi {
			return Value{}, fmt.Errorf("%w: %v out of range [%v, %v]", ErrInvalidValue, n, lo, hi)
		}
		return NumberValue(n), nil
	}
}

func normalizeCredits(v Value) (Value, error) {
	n, err := toNumber(v)
	if err != nil {
		return Value{}, err
	}
	return NumberValue(math.Round(n)), nil
}

func normalizeBool(v Value) (Value, error) {
	switch v.Kind {
	case KindBool:
		return v, nil
	case KindNumber:
		return BoolValue(v.Num != 0), nil
	case KindString:
		if b, ok := parseBoolWord(v.Str); ok {
			return BoolValue(b), nil
		}
	}
	return Value{}, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, v.String())
}

func normalizeList(v Value) (Value, error) {
	var raw []string
	switch v.Kind {
	case KindList:
		raw = v.List
	case KindString:
		raw = strings.Split(v.Str, ",")
	default:
		return Value{}, fmt.Errorf("%w: expected a list, got %s", ErrInvalidValue, v.Kind)
	}
	items := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.Join(strings.Fields(item), " "); item != "" {
			items = append(items, item)
		}
	}
	return ListValue(items...), nil
}

// Skill is one entry of the skills attribute.
type Skill struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// String formats the skill as shown in context snapshots.
func (s Skill) String() string {
	return fmt.Sprintf("%s (%d)", s.Name, s.Level)
}

const (
	skillMinLevel = 1
	skillMaxLevel = 10
)

var skillPattern = regexp.MustCompile(`^(.*?)[\s]*(?:[:=(]\s*(\d+)\s*\)?)?$`)

func parseSkill(s string) (Skill, bool) {
	m := skillPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return Skill{}, false
	}
	level := skillMinLevel
	if m[2] != "" {
		level, _ = strconv.Atoi(m[2])
	}
	return Skill{Name: NormalizeName(m[1]), Level: clampSkill(level)}, true
}

func clampSkill(level int) int {
	return max(skillMinLevel, min(skillMaxLevel, level))
}

// ParseSkills reads a skills value in any of its accepted shapes.
func ParseSkills(v Value) ([]Skill, error) {
	var skills []Skill
	switch v.Kind {
	case KindJSON:
		if err := json.Unmarshal(v.Raw, &skills); err != nil {
			return nil, fmt.Errorf("%w: skills: %v", ErrInvalidValue, err)
		}
	case KindList:
		for _, item := range v.List {
			if s, ok := parseSkill(item); ok {
				skills = append(skills, s)
			}
		}
	case KindString:
		for _, item := range strings.Split(v.Str, ",") {
			if s, ok := parseSkill(item); ok {
				skills = append(skills, s)
			}
		}
	default:
		return nil, fmt.Errorf("%w: skills cannot be a %s", ErrInvalidValue, v.Kind)
	}
	return skills, nil
}

// FormatSkills renders skills for display.
func FormatSkills(skills []Skill) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		out = append(out, s.String())
	}
	return out
}

func normalizeSkills(v Value) (Value, error) {
	skills, err := ParseSkills(v)
	if err != nil {
		return Value{}, err
	}
	seen := make(map[string]int, len(skills))
	merged := make([]Skill, 0, len(skills))
	for _, s := range skills {
		s.Name = NormalizeName(s.Name)
		if s.Name == "" {
			continue
		}
		s.Level = clampSkill(s.Level)
		if i, ok := seen[s.Name]; ok {
			merged[i].Level = max(merged[i].Level, s.Level)
			continue
		}
		seen[s.Name] = len(merged)
		merged = append(merged, s)
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return Value{}, fmt.Errorf("encoding skills: %w", err)
	}
	return JSONValue(data), nil
}
