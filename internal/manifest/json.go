package manifest

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Width 0 keeps every array element on its own line.
var prettyOptions = &pretty.Options{Width: 0, Prefix: "", Indent: "  ", SortKeys: false}

// checkDocument rejects anything that is not a single JSON object.
func checkDocument(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid JSON")
	}
	if !gjson.ParseBytes(data).IsObject() {
		return fmt.Errorf("manifest must be a JSON object")
	}
	return nil
}

// versionOf returns the string value of the top-level "version" key.
func versionOf(data []byte) (string, error) {
	if err := checkDocument(data); err != nil {
		return "", err
	}
	v := gjson.GetBytes(data, "version")
	if !v.Exists() {
		return "", fmt.Errorf("manifest has no version field")
	}
	if v.Type != gjson.String {
		return "", fmt.Errorf("version field is not a string")
	}
	return v.String(), nil
}

// withVersion rewrites the version in place, keeping key order and the
// raw text of every other value, then formats with 2-space indentation.
func withVersion(data []byte, version string) ([]byte, error) {
	updated, err := sjson.SetBytes(data, "version", version)
	if err != nil {
		return nil, fmt.Errorf("failed to set version: %w", err)
	}
	return pretty.PrettyOptions(updated, prettyOptions), nil
}
