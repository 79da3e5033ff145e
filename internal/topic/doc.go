// Package topic implements hierarchical topic filter matching.
//
// Topics are slash-separated segments ("site/floor/room"). Filters may use
// two wildcards:
//   - + matches exactly one segment ("site/+/room")
//   - # matches zero or more trailing segments and must be last ("site/#")
//
// # Specificity
//
// When several filters match the same topic, listeners run in descending
// specificity: exact filters first, then filters containing +, then filters
// ending in #. SpecificityOf reports the class of a filter.
//
// # Usage
//
//	if err := topic.ValidateFilter("sensors/+/temp"); err != nil {
//	    return err
//	}
//	topic.Match("sensors/+/temp", "sensors/kitchen/temp") // true
//
// All functions are pure and safe for concurrent use.
package topic
