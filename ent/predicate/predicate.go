// Code generated by ent, DO NOT EDIT.

package predicate

import (
	"entgo.io/ent/dialect/sql"
)

// InvestigationSession is the predicate function for investigationsession builders.
type InvestigationSession func(*sql.Selector)
