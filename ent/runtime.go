// Code generated by ent, DO NOT EDIT.

package ent

import (
	"time"

	"github.com/probelab/inquest/ent/investigationsession"
	"github.com/probelab/inquest/ent/schema"
)

// The init function reads all schema descriptors with runtime code
// (default values, validators, hooks and policies) and stitches it
// to their package variables.
func init() {
	investigationsessionFields := schema.InvestigationSession{}.Fields()
	_ = investigationsessionFields
	// investigationsessionDescTurnCount is the schema descriptor for turn_count field.
	investigationsessionDescTurnCount := investigationsessionFields[4].Descriptor()
	// investigationsession.DefaultTurnCount holds the default value on creation for the turn_count field.
	investigationsession.DefaultTurnCount = investigationsessionDescTurnCount.Default.(int)
	// investigationsessionDescCreatedAt is the schema descriptor for created_at field.
	investigationsessionDescCreatedAt := investigationsessionFields[10].Descriptor()
	// investigationsession.DefaultCreatedAt holds the default value on creation for the created_at field.
	investigationsession.DefaultCreatedAt = investigationsessionDescCreatedAt.Default.(func() time.Time)
	// investigationsessionDescUpdatedAt is the schema descriptor for updated_at field.
	investigationsessionDescUpdatedAt := investigationsessionFields[11].Descriptor()
	// investigationsession.DefaultUpdatedAt holds the default value on creation for the updated_at field.
	investigationsession.DefaultUpdatedAt = investigationsessionDescUpdatedAt.Default.(func() time.Time)
}
