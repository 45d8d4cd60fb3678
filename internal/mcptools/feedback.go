// Copyright 2026 Robert Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

package mcptools

import "encoding/json"

// baseFeedbackFields are always present regardless of what the caller asked
// for; the optional ones below are included only when requested, and
// "children" drives recursive projection of the same shape. Applying this
// here, rather than in either Backend, keeps the HTTP and stdio fronts
// producing byte-identical output for the same selection.
var baseFeedbackFields = []string{"index", "tagName", "cssSelector", "textContent", "comment", "componentData"}

// optionalFeedbackField maps a requested tag to the key it controls in the
// element payload.
var optionalFeedbackField = map[string]string{
	"xpath":      "xpath",
	"attributes": "attributes",
	"styles":     "computedStyles",
}

func projectFeedbackFields(raw json.RawMessage, fields []string) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage(`[]`), nil
	}

	var elements []map[string]any
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, err
	}

	requested := make(map[string]bool, len(fields))
	for _, f := range fields {
		requested[f] = true
	}

	projected := projectElements(elements, requested)
	return json.Marshal(projected)
}

func projectElements(elements []map[string]any, requested map[string]bool) []map[string]any {
	out := make([]map[string]any, 0, len(elements))
	for _, el := range elements {
		out = append(out, projectElement(el, requested))
	}
	return out
}

func projectElement(el map[string]any, requested map[string]bool) map[string]any {
	result := make(map[string]any, len(baseFeedbackFields)+len(optionalFeedbackField)+1)
	for _, f := range baseFeedbackFields {
		if v, ok := el[f]; ok {
			result[f] = v
		}
	}

	for tag, key := range optionalFeedbackField {
		if !requested[tag] {
			continue
		}
		if v, ok := el[key]; ok {
			result[key] = v
		}
	}

	if requested["children"] {
		if raw, ok := el["children"].([]any); ok {
			children := make([]map[string]any, 0, len(raw))
			for _, c := range raw {
				if cm, ok := c.(map[string]any); ok {
					children = append(children, cm)
				}
			}
			result["children"] = projectElements(children, requested)
		}
	}

	return result
}
