package tools

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// SchemaFor derives a parameter schema from an argument struct.
//
// Field names come from the json tag. Further tags refine each parameter:
//
//	desc:"..."        description shown to the model
//	default:"..."     default applied when the argument is absent
//	enum:"a,b,c"      allowed values
//	min:"1" max:"50"  numeric bounds
//	format:"date"     string format hint
//
// A field is required unless it is a pointer, is tagged omitempty, or has a
// default. Interface-typed fields are advertised without a type.
func SchemaFor(t reflect.Type) (Schema, []string, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("argument type %s is not a struct", t)
	}

	schema := Schema{}
	var required []string
	if err := collectFields(t, &schema, &required); err != nil {
		return nil, nil, err
	}
	return schema, required, nil
}

func collectFields(t reflect.Type, schema *Schema, required *[]string) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("json") == "" {
			if err := collectFields(f.Type, schema, required); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		name, omitempty, skip := jsonName(f)
		if skip {
			continue
		}

		def := ParamDef{
			Name:        name,
			Type:        jsonType(f.Type),
			Description: f.Tag.Get("desc"),
			Format:      f.Tag.Get("format"),
		}
		if def.Format == "" && derefType(f.Type) == timeType {
			def.Format = "date-time"
		}

		if raw, ok := f.Tag.Lookup("default"); ok {
			v, err := coerceValue(def.Type, raw)
			if err != nil {
				return fmt.Errorf("field %s: default: %w", f.Name, err)
			}
			def.Default = v
		}
		if raw, ok := f.Tag.Lookup("enum"); ok {
			for _, item := range strings.Split(raw, ",") {
				v, err := coerceValue(def.Type, strings.TrimSpace(item))
				if err != nil {
					return fmt.Errorf("field %s: enum: %w", f.Name, err)
				}
				def.Enum = append(def.Enum, v)
			}
		}

		var err error
		if def.Minimum, err = parseBound(f, "min"); err != nil {
			return err
		}
		if def.Maximum, err = parseBound(f, "max"); err != nil {
			return err
		}

		*schema = append(*schema, def)
		if !omitempty && def.Default == nil && f.Type.Kind() != reflect.Pointer {
			*required = append(*required, name)
		}
	}
	return nil
}

func jsonName(f reflect.StructField) (name string, omitempty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

func parseBound(f reflect.StructField, key string) (*float64, error) {
	raw, ok := f.Tag.Lookup(key)
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("field %s: %s: %w", f.Name, key, err)
	}
	return &v, nil
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// jsonType maps a Go type to its JSON Schema type name.
func jsonType(t reflect.Type) string {
	t = derefType(t)
	if t == timeType {
		return "string"
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return "string"
		}
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return ""
	}
}
