package topic

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Wildcard and separator tokens.
const (
	Separator      = "/"
	SingleWildcard = "+"
	MultiWildcard  = "#"

	// maxLength is the largest topic a length-prefixed UTF-8 string can carry.
	maxLength = 65535
)

// Specificity ranks how precisely a filter selects topics.
// Higher values are more specific and are dispatched first.
type Specificity int

// Specificity classes, from least to most specific.
const (
	SpecificityMulti  Specificity = iota // ends in #
	SpecificitySingle                    // contains + but no #
	SpecificityExact                     // literal segments only
)

// String returns the class name.
func (s Specificity) String() string {
	switch s {
	case SpecificityExact:
		return "exact"
	case SpecificitySingle:
		return "single-level"
	case SpecificityMulti:
		return "multi-level"
	default:
		return "unknown"
	}
}

// Match reports whether topic matches filter.
//
// Literal filter segments must equal the topic segment, + consumes exactly
// one segment (which must be present), and a trailing # consumes the rest of
// the topic including zero segments. Match does not validate its inputs; an
// empty filter or topic never matches.
func Match(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if filter == topic {
		return true
	}

	for {
		fSeg, fRest, fMore := strings.Cut(filter, Separator)

		if fSeg == MultiWildcard {
			return !fMore
		}

		tSeg, tRest, tMore := strings.Cut(topic, Separator)
		if fSeg != SingleWildcard && fSeg != tSeg {
			return false
		}

		switch {
		case !fMore && !tMore:
			return true
		case !tMore:
			// Topic exhausted: only a trailing "/#" can still match.
			return fRest == MultiWildcard
		case !fMore:
			return false
		}

		filter, topic = fRest, tRest
	}
}

// SpecificityOf returns the specificity class of filter.
func SpecificityOf(filter string) Specificity {
	if filter == MultiWildcard || strings.HasSuffix(filter, Separator+MultiWildcard) {
		return SpecificityMulti
	}
	for _, seg := range strings.Split(filter, Separator) {
		if seg == SingleWildcard {
			return SpecificitySingle
		}
	}
	return SpecificityExact
}

// IsWildcard reports whether filter contains any wildcard segment.
func IsWildcard(filter string) bool {
	return SpecificityOf(filter) != SpecificityExact
}

// ValidateFilter checks that filter is a legal subscription filter.
func ValidateFilter(filter string) error {
	if err := validateCommon(filter); err != nil {
		return err
	}

	segments := strings.Split(filter, Separator)
	for i, seg := range segments {
		hasWildcard := strings.ContainsAny(seg, SingleWildcard+MultiWildcard)
		if !hasWildcard {
			continue
		}
		if seg != SingleWildcard && seg != MultiWildcard {
			return fmt.Errorf("%w: segment %q in %q", ErrMisplacedWildcard, seg, filter)
		}
		if seg == MultiWildcard && i != len(segments)-1 {
			return fmt.Errorf("%w: # must be the last segment in %q", ErrMisplacedWildcard, filter)
		}
	}
	return nil
}

// ValidateTopic checks that topic is a legal publish topic (no wildcards).
func ValidateTopic(topic string) error {
	if err := validateCommon(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, SingleWildcard+MultiWildcard) {
		return fmt.Errorf("%w: %q", ErrWildcardInTopic, topic)
	}
	return nil
}

func validateCommon(s string) error {
	if s == "" {
		return ErrEmpty
	}
	if len(s) > maxLength {
		return fmt.Errorf("%w: %d bytes", ErrTooLong, len(s))
	}
	if !utf8.ValidString(s) || strings.ContainsRune(s, 0) {
		return ErrInvalidEncoding
	}
	return nil
}
