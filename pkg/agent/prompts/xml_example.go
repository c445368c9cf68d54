package prompts

import (
	"fmt"
	"sort"
	"strings"
)

// XMLExampleProvider is an optional interface that tools can implement
// to provide custom XML usage examples
type XMLExampleProvider interface {
	XMLExample() string
}

// exampleValues are placeholder values for well-known browser tool
// argument names.
var exampleValues = map[string]string{
	"url":      "https://example.com",
	"selector": "#search",
	"text":     "search terms",
	"key":      "Enter",
	"query":    "price",
	"result":   "The page lists 3 plans: Free, Pro &amp; Team",
}

// GenerateXMLExample creates a concrete XML example from a JSON Schema.
// Only required properties appear, in name order.
func GenerateXMLExample(schema map[string]interface{}, toolName string) string {
	var builder strings.Builder

	builder.WriteString("<tool>\n")
	builder.WriteString("<server_name>local</server_name>\n")
	builder.WriteString(fmt.Sprintf("<tool_name>%s</tool_name>\n", toolName))
	builder.WriteString("<arguments>\n")

	properties, _ := schema["properties"].(map[string]interface{}) //nolint:errcheck
	required, _ := schema["required"].([]string)                   //nolint:errcheck

	names := make([]string, 0, len(required))
	for _, name := range required {
		if _, ok := properties[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		propMap, ok := properties[name].(map[string]interface{})
		if !ok {
			continue
		}
		builder.WriteString(generatePropertyExample(name, propMap, "  "))
	}

	builder.WriteString("</arguments>\n")
	builder.WriteString("</tool>")

	return builder.String()
}

// generatePropertyExample creates an XML example for a single property
func generatePropertyExample(name string, propSchema map[string]interface{}, indent string) string {
	propType, _ := propSchema["type"].(string) //nolint:errcheck

	switch propType {
	case "string":
		return fmt.Sprintf("%s<%s>%s</%s>\n", indent, name, stringExample(name, propSchema), name)
	case "integer":
		return fmt.Sprintf("%s<%s>3</%s>\n", indent, name, name)
	case "number":
		return fmt.Sprintf("%s<%s>1.5</%s>\n", indent, name, name)
	case "boolean":
		return fmt.Sprintf("%s<%s>true</%s>\n", indent, name, name)
	default:
		return fmt.Sprintf("%s<%s>value</%s>\n", indent, name, name)
	}
}

// stringExample prefers the first enum value, then a known placeholder.
func stringExample(name string, propSchema map[string]interface{}) string {
	switch enum := propSchema["enum"].(type) {
	case []string:
		if len(enum) > 0 {
			return enum[0]
		}
	case []interface{}:
		if len(enum) > 0 {
			if s, ok := enum[0].(string); ok {
				return s
			}
		}
	}
	if v, ok := exampleValues[name]; ok {
		return v
	}
	return "value"
}
