package client

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Field returns the named top-level field of a JSON object. String values are
// returned as-is, numbers in their literal form.
func Field(json, name string) (string, error) {
	if !gjson.Valid(json) {
		return "", fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}
	doc := gjson.Parse(json)
	if !doc.IsObject() {
		return "", fmt.Errorf("%w: expected json object", ErrMalformedResponse)
	}

	var (
		value gjson.Result
		found bool
	)
	doc.ForEach(func(key, v gjson.Result) bool {
		if key.String() == name {
			value, found = v, true
			return false
		}
		return true
	})
	if !found {
		return "", fmt.Errorf("%w: field %q missing", ErrMalformedResponse, name)
	}

	switch value.Type {
	case gjson.String:
		return value.String(), nil
	case gjson.Number:
		return value.Raw, nil
	default:
		return "", fmt.Errorf("%w: field %q is not a string", ErrMalformedResponse, name)
	}
}

// FileSummary is the part of a DataSourceList entry used for display.
type FileSummary struct {
	Name          string
	FriendlyDesc1 string
	FriendlyDesc2 string
}

func (f FileSummary) String() string {
	return f.Name + ": " + f.FriendlyDesc1 + ", " + f.FriendlyDesc2
}

// ParseFileList decodes the entries of a DataSourceList response.
func ParseFileList(json string) ([]FileSummary, error) {
	if !gjson.Valid(json) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}
	doc := gjson.Parse(json)
	if !doc.IsArray() {
		return nil, fmt.Errorf("%w: expected json array", ErrMalformedResponse)
	}

	items := doc.Array()
	out := make([]FileSummary, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, fmt.Errorf("%w: entry %d is not an object", ErrMalformedResponse, i)
		}
		out = append(out, FileSummary{
			Name:          item.Get("Name").String(),
			FriendlyDesc1: item.Get("FriendlyDesc1").String(),
			FriendlyDesc2: item.Get("FriendlyDesc2").String(),
		})
	}
	return out, nil
}

// mergeArrays concatenates the elements of two JSON arrays.
func mergeArrays(parts ...string) (string, error) {
	out := "[]"
	for _, part := range parts {
		if !gjson.Valid(part) {
			return "", fmt.Errorf("%w: invalid json", ErrMalformedResponse)
		}
		doc := gjson.Parse(part)
		if !doc.IsArray() {
			return "", fmt.Errorf("%w: expected json array", ErrMalformedResponse)
		}
		for _, item := range doc.Array() {
			var err error
			out, err = sjson.SetRaw(out, "-1", item.Raw)
			if err != nil {
				return "", fmt.Errorf("merge file lists: %w", err)
			}
		}
	}
	return out, nil
}
