package topic

import (
	"errors"
	"strings"
	"testing"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"foo/bar", "foo/bar", true},
		{"foo/bar", "foo/baz", false},
		{"foo/+/baz", "foo/bar/baz", true},
		{"foo/+/baz", "foo/bar/qux", false},
		{"foo/+", "foo/bar", true},
		{"foo/+", "foo", false},
		{"foo/+", "foo/bar/baz", false},
		{"foo/#", "foo/bar/baz", true},
		{"foo/#", "foo/bar", true},
		{"foo/#", "foo", true},
		{"foo/#", "foobar", false},
		{"foo/+/#", "foo/bar", true},
		{"foo/+/#", "foo/bar/baz/qux", true},
		{"foo/+/#", "foo", false},
		{"#", "foo", true},
		{"#", "foo/bar/baz", true},
		{"+", "foo", true},
		{"+", "foo/bar", false},
		{"+/+", "foo/bar", true},
		{"+/bar", "foo/bar", true},
		{"foo//bar", "foo//bar", true},
		{"foo/+/bar", "foo//bar", true},
		{"foo/bar", "foo/bar/", false},
		{"foo/bar/", "foo/bar", false},
		{"", "foo", false},
		{"foo", "", false},
	}

	for _, tt := range tests {
		if got := Match(tt.filter, tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestSpecificityOf(t *testing.T) {
	tests := []struct {
		filter string
		want   Specificity
	}{
		{"foo/quux/bar", SpecificityExact},
		{"foo", SpecificityExact},
		{"foo/+/bar", SpecificitySingle},
		{"+", SpecificitySingle},
		{"foo/#", SpecificityMulti},
		{"#", SpecificityMulti},
		{"foo/+/#", SpecificityMulti},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			if got := SpecificityOf(tt.filter); got != tt.want {
				t.Errorf("SpecificityOf(%q) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}

	if !(SpecificityExact > SpecificitySingle && SpecificitySingle > SpecificityMulti) {
		t.Error("specificity classes are not ordered exact > single > multi")
	}
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		wantErr error
	}{
		{"literal", "foo/bar", nil},
		{"single wildcard", "foo/+/bar", nil},
		{"multi wildcard", "foo/#", nil},
		{"bare hash", "#", nil},
		{"bare plus", "+", nil},
		{"empty segment", "foo//bar", nil},
		{"empty", "", ErrEmpty},
		{"hash not last", "foo/#/bar", ErrMisplacedWildcard},
		{"partial plus", "foo/ba+", ErrMisplacedWildcard},
		{"partial hash", "foo/bar#", ErrMisplacedWildcard},
		{"nul byte", "foo/\x00", ErrInvalidEncoding},
		{"bad utf8", "foo/\xff", ErrInvalidEncoding},
		{"too long", strings.Repeat("a", 65536), ErrTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilter(tt.filter)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateFilter(%q) error = %v, want nil", tt.filter, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateFilter(%q) error = %v, want %v", tt.filter, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTopic(t *testing.T) {
	if err := ValidateTopic("foo/bar"); err != nil {
		t.Errorf("ValidateTopic() error = %v, want nil", err)
	}
	if err := ValidateTopic("foo/+"); !errors.Is(err, ErrWildcardInTopic) {
		t.Errorf("ValidateTopic(foo/+) error = %v, want ErrWildcardInTopic", err)
	}
	if err := ValidateTopic("foo/#"); !errors.Is(err, ErrWildcardInTopic) {
		t.Errorf("ValidateTopic(foo/#) error = %v, want ErrWildcardInTopic", err)
	}
	if err := ValidateTopic(""); !errors.Is(err, ErrEmpty) {
		t.Errorf("ValidateTopic(\"\") error = %v, want ErrEmpty", err)
	}
}

func TestIsWildcard(t *testing.T) {
	if IsWildcard("foo/bar") {
		t.Error("IsWildcard(foo/bar) = true, want false")
	}
	if !IsWildcard("foo/+") || !IsWildcard("foo/#") {
		t.Error("IsWildcard() = false for wildcard filter, want true")
	}
}
