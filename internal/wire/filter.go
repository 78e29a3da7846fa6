package wire

import "strings"

// FilterKind classifies a topic filter per spec.md §4.1.
type FilterKind int

const (
	FilterRegular FilterKind = iota
	FilterDollar
	FilterShared
)

// Filter is a validated, classified topic filter.
type Filter struct {
	Kind   FilterKind
	Group  string // only set when Kind == FilterShared
	Filter string // the filter itself; for FilterShared, the part after group
}

// ParseFilter validates and classifies raw as a subscription topic
// filter, enforcing: '#' only as the final level, no characters
// adjacent to a wildcard within its level, and shared filters
// ("$share/<group>/<filter>") require a non-empty group and a
// non-empty sub-filter.
func ParseFilter(raw string) (Filter, error) {
	if raw == "" {
		return Filter{}, decodeErr("InvalidFilter", "empty")
	}
	if strings.HasPrefix(raw, "$share/") {
		rest := raw[len("$share/"):]
		slash := strings.IndexByte(rest, '/')
		if slash <= 0 || slash == len(rest)-1 {
			return Filter{}, decodeErr("InvalidFilter", "shared subscription requires group and filter")
		}
		group := rest[:slash]
		filter := rest[slash+1:]
		if strings.ContainsAny(group, "+#/") {
			return Filter{}, decodeErr("InvalidFilter", "shared subscription group")
		}
		if err := validateLevels(filter); err != nil {
			return Filter{}, err
		}
		return Filter{Kind: FilterShared, Group: group, Filter: filter}, nil
	}
	if err := validateLevels(raw); err != nil {
		return Filter{}, err
	}
	kind := FilterRegular
	if strings.HasPrefix(raw, "$") {
		kind = FilterDollar
	}
	return Filter{Kind: kind, Filter: raw}, nil
}

func validateLevels(filter string) error {
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "+" || level == "#":
			if level == "#" && i != len(levels)-1 {
				return decodeErr("InvalidFilter", "# must be the last level")
			}
		case strings.ContainsAny(level, "+#"):
			return decodeErr("InvalidFilter", "wildcard must occupy its entire level")
		}
	}
	return nil
}

// MatchTopic reports whether topic matches filter, applying MQTT v5
// section 4.7.2's rule that a filter beginning with a wildcard never
// matches a topic beginning with '$'.
func MatchTopic(filter, topic string) bool {
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}
	return matchLevels(strings.Split(filter, "/"), strings.Split(topic, "/"))
}

func matchLevels(filterLevels, topicLevels []string) bool {
	for i, fl := range filterLevels {
		if fl == "#" {
			return true
		}
		if i >= len(topicLevels) {
			return false
		}
		if fl != "+" && fl != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}

// ValidateTopicName enforces spec.md §4.1's publish-topic rules:
// non-empty, no wildcards, no '{'/'}', valid UTF-8.
func ValidateTopicName(topic string) error {
	if !isValidTopicName(topic) {
		return decodeErr("TopicNameInvalid", topic)
	}
	return nil
}
