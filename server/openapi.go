package server

import (
	"reflect"
	"strings"
)

// The /openapi document is generated from the route table in NewMux and
// from the handler types themselves: response and request schemas are
// derived by reflection over the JSON tags, so the document cannot
// drift from the structs actually served.

type paramDoc struct {
	Name        string
	In          string // "query" | "path"
	Required    bool
	Description string
}

type responseDoc struct {
	Description string
	Schema      map[string]any
}

type routeDoc struct {
	Method      string
	Path        string
	Summary     string
	Params      []paramDoc
	RequestBody map[string]any
	Responses   map[int]responseDoc
}

func buildOpenAPIDoc(routes []routeDoc) map[string]any {
	paths := make(map[string]any)
	for _, rt := range routes {
		op := map[string]any{
			"summary":   rt.Summary,
			"responses": buildResponses(rt.Responses),
		}
		if len(rt.Params) > 0 {
			params := make([]map[string]any, 0, len(rt.Params))
			for _, p := range rt.Params {
				params = append(params, map[string]any{
					"name":        p.Name,
					"in":          p.In,
					"required":    p.Required || p.In == "path",
					"description": p.Description,
					"schema":      map[string]any{"type": "string"},
				})
			}
			op["parameters"] = params
		}
		if rt.RequestBody != nil {
			op["requestBody"] = map[string]any{
				"required": true,
				"content": map[string]any{
					"application/json": map[string]any{"schema": rt.RequestBody},
				},
			}
		}

		item, _ := paths[rt.Path].(map[string]any)
		if item == nil {
			item = make(map[string]any)
			paths[rt.Path] = item
		}
		item[strings.ToLower(rt.Method)] = op
	}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "LivelyChat API",
			"version": "1.0.0",
		},
		"paths": paths,
	}
}

func buildResponses(in map[int]responseDoc) map[string]any {
	out := make(map[string]any, len(in))
	for status, resp := range in {
		r := map[string]any{"description": resp.Description}
		if resp.Schema != nil {
			r["content"] = map[string]any{
				"application/json": map[string]any{"schema": resp.Schema},
			}
		}
		out[statusText(status)] = r
	}
	return out
}

func statusText(status int) string {
	digits := [3]byte{}
	digits[0] = byte('0' + status/100)
	digits[1] = byte('0' + status/10%10)
	digits[2] = byte('0' + status%10)
	return string(digits[:])
}

// schemaOfValue derives a JSON schema for the value's type.
func schemaOfValue(v any) map[string]any {
	return schemaOf(reflect.TypeOf(v))
}

func schemaOf(t reflect.Type) map[string]any {
	switch t.Kind() {
	case reflect.Pointer:
		return schemaOf(t.Elem())
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Slice, reflect.Array:
		items := map[string]any{}
		if t.Elem().Kind() != reflect.Interface {
			items = schemaOf(t.Elem())
		}
		return map[string]any{"type": "array", "items": items}
	case reflect.Map:
		return map[string]any{"type": "object"}
	case reflect.Struct:
		props := make(map[string]any)
		var required []string
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			tag := f.Tag.Get("json")
			if tag == "-" {
				continue
			}
			name, opts, _ := strings.Cut(tag, ",")
			if name == "" {
				name = f.Name
			}
			props[name] = schemaOf(f.Type)
			if !strings.Contains(opts, "omitempty") {
				required = append(required, name)
			}
		}
		schema := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	default:
		return map[string]any{}
	}
}
