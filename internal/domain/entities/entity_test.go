package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		input   string
		want    EntityType
		wantErr bool
	}{
		{input: "Character", want: EntityCharacter},
		{input: "npc", want: EntityCharacter},
		{input: " place ", want: EntityLocation},
		{input: "item", want: EntityObject},
		{input: "faction", want: EntityOrganization},
		{input: "AI", want: EntityAI},
		{input: "vehicle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEntityType(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEntityType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRelationType(t *testing.T) {
	tests := []struct {
		input    string
		want     RelationType
		category RelationCategory
		wantErr  bool
	}{
		{input: "Friend Of", want: RelationFriendOf, category: CategorySocial},
		{input: "friends", want: RelationFriendOf, category: CategorySocial},
		{input: "works-for", want: RelationEmployedBy, category: CategoryProfessional},
		{input: "lives_in", want: RelationLivesAt, category: CategorySpatial},
		{input: "adjacent to", want: RelationConnectedTo, category: CategorySpatial},
		{input: "owns", want: RelationOwns, category: CategoryOwnership},
		{input: "haunts", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRelationType(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRelationType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.category, got.Category())
		})
	}
}

func TestRelationAttributes_ForCategory(t *testing.T) {
	level := 250
	attrs := RelationAttributes{
		Social:    &SocialAttrs{Level: &level},
		Ownership: &OwnershipAttrs{Quantity: 3},
	}

	social, err := attrs.ForCategory(CategorySocial)
	require.NoError(t, err)
	assert.Nil(t, social.Ownership)
	require.NotNil(t, social.Level())
	assert.Equal(t, RelationLevelMax, *social.Level())

	owned, err := RelationAttributes{}.ForCategory(CategoryOwnership)
	require.NoError(t, err)
	assert.Equal(t, 1, owned.Ownership.Quantity)

	_, err = RelationAttributes{Ownership: &OwnershipAttrs{Quantity: -1}}.ForCategory(CategoryOwnership)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestEntity_DisplayName(t *testing.T) {
	e := &Entity{Name: "Mara Voss", UnknownAlias: "the bartender"}
	assert.Equal(t, "the bartender", e.DisplayName())

	e.Known = true
	assert.Equal(t, "Mara Voss", e.DisplayName())
}

func TestNormalizeAttribute(t *testing.T) {
	tests := []struct {
		name       string
		entityType EntityType
		key        string
		value      Value
		wantKey    AttributeKey
		want       Value
		wantErr    error
	}{
		{
			name: "mood synonym", entityType: EntityCharacter, key: "Mood",
			value: StringValue(" Furious "), wantKey: AttrMood, want: StringValue("angry"),
		},
		{
			name: "gauge clamped", entityType: EntityProtagonist, key: "energy",
			value: StringValue("140%"), wantKey: AttrEnergy, want: NumberValue(100),
		},
		{
			name: "credits rounded", entityType: EntityProtagonist, key: "credits",
			value: NumberValue(12.6), wantKey: AttrCredits, want: NumberValue(13),
		},
		{
			name: "bool word", entityType: EntityLocation, key: "accessible",
			value: StringValue("no"), wantKey: AttrAccessible, want: BoolValue(false),
		},
		{
			name: "list from text", entityType: EntityLocation, key: "notable features",
			value: StringValue("neon sign,  back door ,"), wantKey: AttrNotableFeatures, want: ListValue("neon sign", "back door"),
		},
		{
			name: "key not allowed", entityType: EntityLocation, key: "mood",
			value: StringValue("calm"), wantErr: ErrInvalidAttributeForType,
		},
		{
			name: "age out of range", entityType: EntityCharacter, key: "age",
			value: NumberValue(-4), wantErr: ErrInvalidValue,
		},
		{
			name: "empty value", entityType: EntityCharacter, key: "description",
			value: Value{}, wantErr: ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, v, err := NormalizeAttribute(tt.entityType, tt.key, tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestParseSkills(t *testing.T) {
	skills, err := ParseSkills(StringValue("Hacking: 4, lockpicking (12), driving"))
	require.NoError(t, err)
	assert.Equal(t, []Skill{
		{Name: "hacking", Level: 4},
		{Name: "lockpicking", Level: 10},
		{Name: "driving", Level: 1},
	}, skills)
	assert.Equal(t, []string{"hacking (4)", "lockpicking (10)", "driving (1)"}, FormatSkills(skills))

	_, err = ParseSkills(NumberValue(3))
	assert.ErrorIs(t, err, ErrInvalidValue)
}
