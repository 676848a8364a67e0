// Copyright 2018 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flagvar_test

import (
	"flag"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/luoyongjiee/Jamvm/cmd/flagvar"
)

type allTypes struct {
	I   int           `f:"int-flag,-1,an int flag"`
	I64 int64         `f:"int64-flag,42,an int64 flag"`
	U   uint          `f:"uint-flag,7,a uint flag"`
	U64 uint64        `f:"uint64-flag,8,a uint64 flag"`
	B   bool          `f:"bool-flag,true,a bool flag"`
	F   float64       `f:"float-flag,1.5,a float64 flag"`
	S   string        `f:"string-flag,'some,value,with,commas',a string flag"`
	D   time.Duration `f:"duration-flag,250ms,a duration flag"`
}

func TestRegisterAllTypes(t *testing.T) {
	var at allTypes
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if err := flagvar.RegisterFlagsInStruct(fs, "f", &at); err != nil {
		t.Fatalf("RegisterFlagsInStruct: %v", err)
	}

	// Defaults are installed into the struct at registration time.
	if at.I != -1 || at.I64 != 42 || at.U != 7 || at.U64 != 8 {
		t.Errorf("integer defaults not applied: %+v", at)
	}
	if !at.B || at.F != 1.5 || at.D != 250*time.Millisecond {
		t.Errorf("bool/float/duration defaults not applied: %+v", at)
	}
	if got, want := at.S, "some,value,with,commas"; got != want {
		t.Errorf("quoted string default: got %q, want %q", got, want)
	}

	// Parsed values land in the bound fields.
	args := []string{
		"-int-flag=3", "-bool-flag=false", "-duration-flag=2s",
		"-string-flag=plain",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if at.I != 3 || at.B || at.D != 2*time.Second || at.S != "plain" {
		t.Errorf("parsed values not applied: %+v", at)
	}
	// Untouched flags keep their defaults.
	if at.I64 != 42 || at.F != 1.5 {
		t.Errorf("defaults clobbered by Parse: %+v", at)
	}
	if got, want := fs.Lookup("uint-flag").DefValue, "7"; got != want {
		t.Errorf("DefValue: got %q, want %q", got, want)
	}
}

func TestRegisterEmbedded(t *testing.T) {
	type common struct {
		A int `f:"a,1,use a"`
		B int `f:"b,2,use b"`
	}
	cfg := struct {
		common
		C bool `f:"c,,use c"`
	}{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if err := flagvar.RegisterFlagsInStruct(fs, "f", &cfg); err != nil {
		t.Fatalf("RegisterFlagsInStruct: %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if fs.Lookup(name) == nil {
			t.Errorf("flag %q not registered", name)
		}
	}
	if cfg.A != 1 || cfg.B != 2 || cfg.C {
		t.Errorf("unexpected state after registration: %+v", cfg)
	}
}

// level is a flag.Value implementation used to check Var-based registration.
type level int

var levelNames = []string{"off", "low", "high"}

func (l *level) String() string { return levelNames[*l] }

func (l *level) Set(s string) error {
	for i, name := range levelNames {
		if s == name {
			*l = level(i)
			return nil
		}
	}
	return fmt.Errorf("unknown level %q", s)
}

func TestRegisterFlagValue(t *testing.T) {
	cfg := struct {
		L level `f:"level,low,verbosity level"`
	}{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if err := flagvar.RegisterFlagsInStruct(fs, "f", &cfg); err != nil {
		t.Fatalf("RegisterFlagsInStruct: %v", err)
	}
	if got, want := cfg.L, level(1); got != want {
		t.Errorf("default: got %v, want %v", got, want)
	}
	if err := fs.Parse([]string{"-level=high"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got, want := cfg.L, level(2); got != want {
		t.Errorf("parsed: got %v, want %v", got, want)
	}
}

func TestRegisterErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		in   interface{}
		msg  string
	}{
		{"not a pointer", struct{}{}, "not a pointer to a struct"},
		{"unsupported type", &struct {
			X []string `f:"x,,a slice"`
		}{}, "unsupported field type"},
		{"missing usage", &struct {
			X int `f:"x,0"`
		}{}, "missing usage"},
		{"empty tag", &struct {
			X int `f:""`
		}{}, "empty or missing tag"},
		{"bad default", &struct {
			X int `f:"x,notanint,an int"`
		}{}, "invalid syntax"},
		{"unterminated quote", &struct {
			X string `f:"x,'oops,a string"`
		}{}, "missing closing quote"},
		{"duplicate", &struct {
			X int `f:"dup,0,first"`
			Y int `f:"dup,0,second"`
		}{}, "already defined"},
	} {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		err := flagvar.RegisterFlagsInStruct(fs, "f", test.in)
		if err == nil || !strings.Contains(err.Error(), test.msg) {
			t.Errorf("%s: got error %v, want one containing %q", test.name, err, test.msg)
		}
	}
}

func TestParseFlagTag(t *testing.T) {
	for _, test := range []struct {
		tag                string
		name, value, usage string
	}{
		{"n,v,u", "n", "v", "u"},
		{"n,,u", "n", "", "u"},
		{"n,'a,b',u", "n", "a,b", "u"},
		{"n,v,'u, with commas'", "n", "v", "u, with commas"},
		{"'n',v,u", "n", "v", "u"},
	} {
		name, value, usage, err := flagvar.ParseFlagTag(test.tag)
		if err != nil {
			t.Errorf("%q: unexpected error %v", test.tag, err)
			continue
		}
		if name != test.name || value != test.value || usage != test.usage {
			t.Errorf("%q: got (%q, %q, %q), want (%q, %q, %q)",
				test.tag, name, value, usage, test.name, test.value, test.usage)
		}
	}
}
