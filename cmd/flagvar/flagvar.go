// Copyright 2018 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flagvar registers command-line flags declared as annotated struct
// fields.  A field carries a tag of the form
//
//	<name>,<default>,<usage>
//
// and RegisterFlagsInStruct defines one flag per tagged field, bound directly
// to that field.  This keeps a command's flags next to the value struct its
// runner reads instead of in a pile of package-level variables, which matters
// once a command tree grows more than a handful of leaves.
//
// <name> and <usage> are required; <default> is an optional literal parsed
// according to the field's type, with the type's zero value used when it is
// empty.  Any of the three may be quoted with ' if it needs to contain a
// comma:
//
//	type benchFlags struct {
//		Threads int           `cmdline:"threads,8,number of worker threads"`
//		Warmup  time.Duration `cmdline:"warmup,1s,'time to run, per phase, before measuring'"`
//	}
//
// Supported field types are bool, int, int64, uint, uint64, float64, string,
// time.Duration, and any type whose pointer implements flag.Value.  Untagged
// embedded structs are walked recursively; other untagged fields are ignored.
package flagvar

import (
	"errors"
	"flag"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// RegisterFlagsInStruct defines a flag on fs for every field of
// structWithFlags carrying the given struct tag, binding the flag to that
// field.  structWithFlags must be a pointer to a struct.  It is an error for
// a tagged field to have an unsupported type, for a tag to fail to parse, or
// for two fields to declare the same flag name.
func RegisterFlagsInStruct(fs *flag.FlagSet, tag string, structWithFlags interface{}) error {
	val := reflect.ValueOf(structWithFlags)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%T is not a pointer to a struct", structWithFlags)
	}
	return registerStructFields(fs, tag, val.Elem())
}

func registerStructFields(fs *flag.FlagSet, tag string, val reflect.Value) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tagText, ok := field.Tag.Lookup(tag)
		if !ok {
			if field.Anonymous && field.Type.Kind() == reflect.Struct {
				if err := registerStructFields(fs, tag, val.Field(i)); err != nil {
					return err
				}
			}
			continue
		}
		name, literal, usage, err := ParseFlagTag(tagText)
		if err != nil {
			return fmt.Errorf("field %v: tag %q: %v", field.Name, tagText, err)
		}
		if fs.Lookup(name) != nil {
			return fmt.Errorf("field %v: flag %v already defined", field.Name, name)
		}
		if err := registerField(fs, val.Field(i), name, literal, usage); err != nil {
			return fmt.Errorf("field %v, flag %v: %v", field.Name, name, err)
		}
	}
	return nil
}

func registerField(fs *flag.FlagSet, fieldValue reflect.Value, name, literal, usage string) error {
	if !fieldValue.CanAddr() {
		return errors.New("field is not addressable")
	}
	switch ptr := fieldValue.Addr().Interface().(type) {
	case flag.Value:
		fs.Var(ptr, name, usage)
		if literal != "" {
			if err := ptr.Set(literal); err != nil {
				return fmt.Errorf("bad default %q: %v", literal, err)
			}
			fs.Lookup(name).DefValue = literal
		}
	case *bool:
		v, err := parseBool(literal)
		if err != nil {
			return err
		}
		fs.BoolVar(ptr, name, v, usage)
	case *time.Duration:
		v, err := parseDuration(literal)
		if err != nil {
			return err
		}
		fs.DurationVar(ptr, name, v, usage)
	case *int:
		v, err := parseInt(literal, strconv.IntSize)
		if err != nil {
			return err
		}
		fs.IntVar(ptr, name, int(v), usage)
	case *int64:
		v, err := parseInt(literal, 64)
		if err != nil {
			return err
		}
		fs.Int64Var(ptr, name, v, usage)
	case *uint:
		v, err := parseUint(literal, strconv.IntSize)
		if err != nil {
			return err
		}
		fs.UintVar(ptr, name, uint(v), usage)
	case *uint64:
		v, err := parseUint(literal, 64)
		if err != nil {
			return err
		}
		fs.Uint64Var(ptr, name, v, usage)
	case *float64:
		v, err := parseFloat(literal)
		if err != nil {
			return err
		}
		fs.Float64Var(ptr, name, v, usage)
	case *string:
		fs.StringVar(ptr, name, literal, usage)
	default:
		return fmt.Errorf("unsupported field type %v", fieldValue.Type())
	}
	return nil
}

func parseBool(literal string) (bool, error) {
	if literal == "" {
		return false, nil
	}
	return strconv.ParseBool(literal)
}

func parseDuration(literal string) (time.Duration, error) {
	if literal == "" {
		return 0, nil
	}
	return time.ParseDuration(literal)
}

func parseInt(literal string, bits int) (int64, error) {
	if literal == "" {
		return 0, nil
	}
	return strconv.ParseInt(literal, 10, bits)
}

func parseUint(literal string, bits int) (uint64, error) {
	if literal == "" {
		return 0, nil
	}
	return strconv.ParseUint(literal, 10, bits)
}

func parseFloat(literal string) (float64, error) {
	if literal == "" {
		return 0, nil
	}
	return strconv.ParseFloat(literal, 64)
}

// ParseFlagTag splits a "<name>,<default>,<usage>" tag into its three
// fields.  <name> and <usage> must be non-empty; <default> may be empty.  A
// field quoted with ' may contain commas; the quotes are stripped.
func ParseFlagTag(t string) (name, value, usage string, err error) {
	if t == "" {
		return "", "", "", errors.New("empty or missing tag")
	}
	var rest string
	if name, rest, err = tagField(t); err != nil {
		return "", "", "", err
	}
	if name == "" {
		return "", "", "", errors.New("empty flag name")
	}
	if rest == "" {
		return "", "", "", errors.New("missing default value and usage fields")
	}
	if value, rest, err = tagField(rest); err != nil {
		return "", "", "", err
	}
	if rest == "" {
		return "", "", "", errors.New("missing usage field")
	}
	if usage, rest, err = tagField(rest); err != nil {
		return "", "", "", err
	}
	if usage == "" {
		return "", "", "", errors.New("empty usage field")
	}
	if rest != "" {
		return "", "", "", fmt.Errorf("spurious text %q after usage field", rest)
	}
	return name, value, usage, nil
}

// tagField consumes one comma-separated field, honoring ' quoting.  rest is
// what follows the field's separating comma, or empty at the end of the tag.
func tagField(t string) (field, rest string, err error) {
	if !strings.HasPrefix(t, "'") {
		if i := strings.IndexByte(t, ','); i >= 0 {
			return t[:i], t[i+1:], nil
		}
		return t, "", nil
	}
	end := strings.IndexByte(t[1:], '\'')
	if end < 0 {
		return "", "", errors.New("missing closing quote (')")
	}
	field, rest = t[1:1+end], t[2+end:]
	switch {
	case rest == "":
		return field, "", nil
	case rest[0] == ',':
		return field, rest[1:], nil
	default:
		return "", "", fmt.Errorf("spurious text %q after quoted field", rest)
	}
}
