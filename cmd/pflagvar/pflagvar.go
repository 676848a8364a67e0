// Package pflagvar registers flags declared as annotated struct fields, like
// flagvar, but on a github.com/spf13/pflag FlagSet.  The tag format is
// flagvar's "<name>,<default>,<usage>", extended so that <name> may carry a
// POSIX one-letter shorthand after a semicolon:
//
//	type benchFlags struct {
//		Threads int  `cmdline:"threads;t,8,number of worker threads"`
//		Verbose bool `cmdline:"verbose;v,,enable verbose output"`
//	}
//
// registers --threads/-t and --verbose/-v.  Supported field types are bool,
// int, int64, uint, uint64, float64, string, time.Duration, and any type
// whose pointer implements pflag.Value.
package pflagvar

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/luoyongjiee/Jamvm/cmd/flagvar"
)

// RegisterFlagsInStruct defines a flag on fs for every field of
// structWithFlags carrying the given struct tag, binding the flag to that
// field.  structWithFlags must be a pointer to a struct.  Untagged embedded
// structs are walked recursively; other untagged fields are ignored.
func RegisterFlagsInStruct(fs *pflag.FlagSet, tag string, structWithFlags interface{}) error {
	val := reflect.ValueOf(structWithFlags)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%T is not a pointer to a struct", structWithFlags)
	}
	return registerStructFields(fs, tag, val.Elem())
}

func registerStructFields(fs *pflag.FlagSet, tag string, val reflect.Value) error {
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
		names, literal, usage, err := flagvar.ParseFlagTag(tagText)
		if err != nil {
			return fmt.Errorf("field %v: tag %q: %v", field.Name, tagText, err)
		}
		name, shorthand, err := splitShorthand(names)
		if err != nil {
			return fmt.Errorf("field %v: tag %q: %v", field.Name, tagText, err)
		}
		if fs.Lookup(name) != nil {
			return fmt.Errorf("field %v: flag %v already defined", field.Name, name)
		}
		if err := registerField(fs, val.Field(i), name, shorthand, literal, usage); err != nil {
			return fmt.Errorf("field %v, flag %v: %v", field.Name, name, err)
		}
	}
	return nil
}

// splitShorthand splits a "<name>" or "<name>;<shorthand>" tag name field.
func splitShorthand(names string) (name, shorthand string, err error) {
	name, shorthand, found := strings.Cut(names, ";")
	if name == "" {
		return "", "", errors.New("empty flag name")
	}
	if found && len(shorthand) != 1 {
		return "", "", fmt.Errorf("shorthand %q is not a single letter", shorthand)
	}
	return name, shorthand, nil
}

func registerField(fs *pflag.FlagSet, fieldValue reflect.Value, name, shorthand, literal, usage string) error {
	if !fieldValue.CanAddr() {
		return errors.New("field is not addressable")
	}
	switch ptr := fieldValue.Addr().Interface().(type) {
	case pflag.Value:
		fs.VarP(ptr, name, shorthand, usage)
		if literal != "" {
			if err := ptr.Set(literal); err != nil {
				return fmt.Errorf("bad default %q: %v", literal, err)
			}
			fs.Lookup(name).DefValue = literal
		}
	case *bool:
		v := false
		if literal != "" {
			var err error
			if v, err = strconv.ParseBool(literal); err != nil {
				return err
			}
		}
		fs.BoolVarP(ptr, name, shorthand, v, usage)
	case *time.Duration:
		var v time.Duration
		if literal != "" {
			var err error
			if v, err = time.ParseDuration(literal); err != nil {
				return err
			}
		}
		fs.DurationVarP(ptr, name, shorthand, v, usage)
	case *int:
		var v int
		if literal != "" {
			var err error
			if v, err = strconv.Atoi(literal); err != nil {
				return err
			}
		}
		fs.IntVarP(ptr, name, shorthand, v, usage)
	case *int64:
		var v int64
		if literal != "" {
			var err error
			if v, err = strconv.ParseInt(literal, 10, 64); err != nil {
				return err
			}
		}
		fs.Int64VarP(ptr, name, shorthand, v, usage)
	case *uint:
		var v uint64
		if literal != "" {
			var err error
			if v, err = strconv.ParseUint(literal, 10, strconv.IntSize); err != nil {
				return err
			}
		}
		fs.UintVarP(ptr, name, shorthand, uint(v), usage)
	case *uint64:
		var v uint64
		if literal != "" {
			var err error
			if v, err = strconv.ParseUint(literal, 10, 64); err != nil {
				return err
			}
		}
		fs.Uint64VarP(ptr, name, shorthand, v, usage)
	case *float64:
		var v float64
		if literal != "" {
			var err error
			if v, err = strconv.ParseFloat(literal, 64); err != nil {
				return err
			}
		}
		fs.Float64VarP(ptr, name, shorthand, v, usage)
	case *string:
		fs.StringVarP(ptr, name, shorthand, literal, usage)
	default:
		return fmt.Errorf("unsupported field type %v", fieldValue.Type())
	}
	return nil
}
