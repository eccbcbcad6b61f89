// Package dsl provides a fluent builder for procedure definitions.
//
// It is the programmatic counterpart of the YAML definition files and is
// mostly used by tests and embedding hosts:
//
//	def, err := dsl.New("ventriculostomy").
//	    Action(moveDrill).
//	    Step("cranial_access").Enable("move_drill").Go("move_drill", "cranial_access").
//	    Builder().Build()
package dsl
