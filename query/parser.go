package query

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kartikbazzad/bunstore/storage"
)

func msToDuration(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

var leafOperators = map[string]Operator{
	"$eq": OpEq, "$ne": OpNe, "$lt": OpLt, "$lte": OpLte,
	"$gt": OpGt, "$gte": OpGte, "$in": OpIn, "$nin": OpNin,
	"$exists": OpExists, "$regex": OpRegex,
}

const (
	logAnd = "$and"
	logOr  = "$or"
	logNot = "$not"
	logNor = "$nor"
)

// Parse decodes raw JSON bytes into a Query. Unknown top-level keys are
// folded into the filter (tolerant mode).
func Parse(raw []byte) (*Query, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, storage.ErrParse(fmt.Sprintf("malformed query JSON: %v", err))
	}
	return ParseObject(obj)
}

// ParseObject builds a Query from an already-decoded JSON object, applying
// the same top-level key recognition as Parse.
func ParseObject(obj map[string]interface{}) (*Query, error) {
	q := &Query{}
	filterFields := map[string]interface{}{}

	var collection string
	var haveCollection bool
	var filterRaw interface{}
	var haveFilter bool
	var sortRaw interface{}
	var optionsRaw interface{}
	var projectionRaw interface{}

	for key, val := range obj {
		switch strings.ToLower(key) {
		case "collection", "collectionname":
			s, ok := val.(string)
			if !ok {
				return nil, storage.ErrParse(fmt.Sprintf("collection name must be a string, got %T", val))
			}
			collection = s
			haveCollection = true
		case "filter":
			filterRaw = val
			haveFilter = true
		case "sort":
			sortRaw = val
		case "options":
			optionsRaw = val
		case "projection":
			projectionRaw = val
		default:
			filterFields[key] = val
		}
	}

	if !haveCollection || collection == "" {
		return nil, storage.ErrParse("query is missing a collection name")
	}
	q.Collection = collection

	switch {
	case haveFilter && len(filterFields) > 0:
		m, ok := filterRaw.(map[string]interface{})
		if !ok {
			return nil, storage.ErrParse("filter must be a JSON object")
		}
		for k, v := range m {
			filterFields[k] = v
		}
		filter, err := parseFilterObject(filterFields)
		if err != nil {
			return nil, err
		}
		q.Filter = filter
	case haveFilter:
		m, ok := filterRaw.(map[string]interface{})
		if !ok {
			return nil, storage.ErrParse("filter must be a JSON object")
		}
		filter, err := parseFilterObject(m)
		if err != nil {
			return nil, err
		}
		q.Filter = filter
	case len(filterFields) > 0:
		filter, err := parseFilterObject(filterFields)
		if err != nil {
			return nil, err
		}
		q.Filter = filter
	default:
		q.Filter = &And{}
	}

	if sortRaw != nil {
		sortFields, err := parseSort(sortRaw)
		if err != nil {
			return nil, err
		}
		q.Sort = sortFields
	}

	opts, err := parseOptions(optionsRaw)
	if err != nil {
		return nil, err
	}
	q.Options = opts

	proj, err := parseProjection(projectionRaw)
	if err != nil {
		return nil, err
	}
	q.Projection = proj

	return q, nil
}

// parseFilterObject parses a filter object as an implicit AND over its
// entries.
func parseFilterObject(obj map[string]interface{}) (Node, error) {
	var children []Node
	for key, val := range obj {
		switch key {
		case logAnd, logOr:
			list, ok := val.([]interface{})
			if !ok {
				return nil, storage.ErrParse(fmt.Sprintf("%s requires an array of filter objects", key))
			}
			sub, err := parseFilterList(list)
			if err != nil {
				return nil, err
			}
			if key == logAnd {
				children = append(children, &And{Children: sub})
			} else {
				children = append(children, &Or{Children: sub})
			}
		case logNot:
			m, ok := val.(map[string]interface{})
			if !ok {
				return nil, storage.ErrParse("$not requires a filter object")
			}
			inner, err := parseFilterObject(m)
			if err != nil {
				return nil, err
			}
			children = append(children, &Not{Child: inner})
		case logNor:
			list, ok := val.([]interface{})
			if !ok {
				return nil, storage.ErrParse("$nor requires an array of filter objects")
			}
			sub, err := parseFilterList(list)
			if err != nil {
				return nil, err
			}
			children = append(children, &Not{Child: &Or{Children: sub}})
		default:
			fieldConds, err := parseFieldValue(key, val)
			if err != nil {
				return nil, err
			}
			children = append(children, fieldConds...)
		}
	}
	return &And{Children: children}, nil
}

func parseFilterList(list []interface{}) ([]Node, error) {
	out := make([]Node, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, storage.ErrParse("logical operator element must be a filter object")
		}
		n, err := parseFilterObject(m)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// parseFieldValue turns field: value into one or more Leaf conditions. An
// object value whose keys are all operator tokens yields one Leaf per
// operator; a scalar or an empty object is an implicit $eq. A non-empty
// object with any key that is not an operator token is a ParseError.
func parseFieldValue(field string, val interface{}) ([]Node, error) {
	m, ok := val.(map[string]interface{})
	if !ok {
		return []Node{&Leaf{Field: field, Operator: OpEq, Operand: val}}, nil
	}
	if len(m) == 0 {
		return []Node{&Leaf{Field: field, Operator: OpEq, Operand: m}}, nil
	}

	var out []Node
	for opToken, operand := range m {
		op, known := leafOperators[opToken]
		if !known {
			return nil, storage.ErrParse(fmt.Sprintf("unknown operator %q on field %q", opToken, field))
		}
		if op == OpIn || op == OpNin {
			if _, isArray := operand.([]interface{}); !isArray {
				return nil, storage.ErrParse(fmt.Sprintf("%s on field %q requires an array operand", opToken, field))
			}
		}
		out = append(out, &Leaf{Field: field, Operator: op, Operand: operand})
	}
	return out, nil
}

func parseSort(raw interface{}) ([]SortField, error) {
	switch v := raw.(type) {
	case map[string]interface{}:
		// A single-key object has no ordering ambiguity (spec §4.5 scenario
		// #2 feeds exactly this: {"age": -1}). Multiple keys in object form
		// can't preserve the spec's "order of keys is significant" grammar
		// through Go's unordered map decoding, so that case still requires
		// the array form.
		if len(v) != 1 {
			return nil, storage.ErrParse("multi-key object-form sort can't preserve key order; use the array form [{field: direction}, ...]")
		}
		out := make([]SortField, 0, 1)
		for field, dir := range v {
			out = append(out, SortField{Field: field, Direction: parseDirection(dir)})
		}
		return out, nil
	case []interface{}:
		out := make([]SortField, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, storage.ErrParse("sort array element must be an object")
			}
			for field, dir := range m {
				out = append(out, SortField{Field: field, Direction: parseDirection(dir)})
			}
		}
		return out, nil
	default:
		return nil, storage.ErrParse("sort must be an object or an array")
	}
}

func parseDirection(v interface{}) SortDirection {
	switch d := v.(type) {
	case float64:
		if d < 0 {
			return Desc
		}
		return Asc
	case int:
		if d < 0 {
			return Desc
		}
		return Asc
	case string:
		if strings.EqualFold(d, "desc") {
			return Desc
		}
		return Asc
	default:
		return Asc
	}
}

func parseOptions(raw interface{}) (Options, error) {
	opts := Options{}
	if raw == nil {
		return opts, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return opts, storage.ErrParse("options must be a JSON object")
	}
	for key, val := range m {
		switch strings.ToLower(key) {
		case "limit":
			n, err := asInt(val)
			if err != nil {
				return opts, storage.ErrParse(fmt.Sprintf("options.limit: %v", err))
			}
			opts.Limit = n
			opts.HasLimit = true
		case "skip":
			n, err := asInt(val)
			if err != nil {
				return opts, storage.ErrParse(fmt.Sprintf("options.skip: %v", err))
			}
			opts.Skip = n
		case "includetotalcount":
			b, ok := val.(bool)
			if !ok {
				return opts, storage.ErrParse("options.includeTotalCount must be a boolean")
			}
			opts.IncludeTotalCount = b
		case "timeoutms", "timeout":
			n, err := asInt(val)
			if err != nil {
				return opts, storage.ErrParse(fmt.Sprintf("options.timeoutMs: %v", err))
			}
			opts.Timeout = msToDuration(n)
		}
	}
	return opts, nil
}

func parseProjection(raw interface{}) (Projection, error) {
	if raw == nil {
		return Projection{}, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return Projection{}, storage.ErrParse("projection must be a JSON object")
	}
	fields := make(map[string]bool, len(m))
	for key, val := range m {
		fields[key] = truthy(val)
	}
	return Projection{Fields: fields}, nil
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return v != nil
	}
}

func asInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
