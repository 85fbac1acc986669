// Package convert implements the conversion collaborator spec.md §4.I
// leaves pluggable: turning a Cursor's raw field bytes and MonetDB type
// descriptor into a Go value. It is intentionally not exhaustive — full
// typed decimal and temporal arithmetic is out of this repo's grounding
// scope (see /DESIGN.md) — but covers the scalar cases the seed tests in
// spec.md §8 exercise directly.
package convert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MonetDB/go-monetdb/internal/protocol"
)

// Converter turns one field's raw wire bytes into a Go value. isNull
// reports SQL NULL, in which case raw is meaningless and Convert must
// return (nil, nil).
type Converter interface {
	Convert(raw []byte, isNull bool, typ protocol.MonetType) (any, error)
}

// Default is the Converter used when a Config doesn't set one.
type Default struct{}

var integerTypes = map[string]bool{
	"tinyint": true, "smallint": true, "int": true, "bigint": true, "hugeint": true,
	"oid": true, "wrd": true,
}

var floatTypes = map[string]bool{"real": true, "double": true}

// temporalOrDecimalTypes are passed through as their raw string form:
// full typed arithmetic for these is out of scope (SPEC_FULL.md §4.L).
var temporalOrDecimalTypes = map[string]bool{
	"decimal": true, "date": true, "time": true, "timestamp": true,
	"timestamptz": true, "timetz": true, "sec_interval": true, "month_interval": true,
}

func (Default) Convert(raw []byte, isNull bool, typ protocol.MonetType) (any, error) {
	if isNull {
		return nil, nil
	}
	name := strings.ToLower(typ.Name)
	switch {
	case name == "boolean":
		switch string(raw) {
		case "true", "t", "1":
			return true, nil
		case "false", "f", "0":
			return false, nil
		default:
			return nil, fmt.Errorf("convert: unrecognized boolean literal %q", raw)
		}
	case integerTypes[name]:
		v, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("convert: column type %s: %w", typ.Name, err)
		}
		return v, nil
	case floatTypes[name]:
		v, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("convert: column type %s: %w", typ.Name, err)
		}
		return v, nil
	case name == "blob":
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case temporalOrDecimalTypes[name]:
		return string(raw), nil
	default:
		// varchar, char, clob, uuid, json, and anything else not listed
		// above pass through as their decoded string form.
		return string(raw), nil
	}
}
