package entities

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// errRequired stands in for the unwrapped "is required" errors.
var errRequired = errors.New("required")

func TestInventoryChange_Validate(t *testing.T) {
	tests := []struct {
		name    string
		change  InventoryChange
		wantErr error
	}{
		{
			name:   "new object without type",
			change: InventoryChange{Action: "acquire", NewObject: &EntityCreated{Name: "Rusty Key"}},
		},
		{
			name:   "acquire by reference",
			change: InventoryChange{Action: "Acquire", ObjectRef: "Oil Lamp"},
		},
		{
			name:    "new object with bad type",
			change:  InventoryChange{Action: "acquire", NewObject: &EntityCreated{EntityType: "vehicle", Name: "Hover Bike"}},
			wantErr: ErrInvalidEntityType,
		},
		{
			name:    "lose needs a reference",
			change:  InventoryChange{Action: "lose", NewObject: &EntityCreated{Name: "Rusty Key"}},
			wantErr: errRequired,
		},
		{
			name:    "unknown action",
			change:  InventoryChange{Action: "steal", ObjectRef: "Oil Lamp"},
			wantErr: ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.change.Validate()
			switch tt.wantErr {
			case nil:
				assert.NoError(t, err)
			case errRequired:
				assert.ErrorContains(t, err, "is required")
			default:
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestInventoryChange_NewObjectSpec(t *testing.T) {
	_, ok := InventoryChange{Action: "use", ObjectRef: "Oil Lamp"}.NewObjectSpec()
	assert.False(t, ok)

	in := InventoryChange{Action: "acquire", NewObject: &EntityCreated{Name: "Rusty Key"}}
	spec, ok := in.NewObjectSpec()
	require.True(t, ok)
	assert.Equal(t, string(EntityObject), spec.EntityType)
	assert.Empty(t, in.NewObject.EntityType, "the payload itself is left untouched")

	spec, ok = InventoryChange{NewObject: &EntityCreated{EntityType: "character", Name: "Dex"}}.NewObjectSpec()
	require.True(t, ok)
	assert.Equal(t, "character", spec.EntityType)
}
