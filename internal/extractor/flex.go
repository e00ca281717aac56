package extractor

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The hydration payload is not strictly typed: numeric fields occasionally
// arrive as strings and the merchant is sometimes a bare string instead of an
// object. These wrappers absorb the variants instead of failing the island.

// flexString decodes a JSON string or number into a string
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if trimmed == "null" {
		*f = ""
		return nil
	}
	*f = flexString(trimmed)
	return nil
}

// flexFloat decodes a JSON number or numeric string into a float64
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(string(data), `"`)
	if trimmed == "null" || trimmed == "" {
		*f = 0
		return nil
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(value)
	return nil
}

// merchantRef decodes either {"merchantName": "..."} or a bare string
type merchantRef struct {
	Name string
}

func (m *merchantRef) UnmarshalJSON(data []byte) error {
	var obj struct {
		MerchantName string `json:"merchantName"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.MerchantName != "" {
		m.Name = obj.MerchantName
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		m.Name = name
	}
	return nil
}
