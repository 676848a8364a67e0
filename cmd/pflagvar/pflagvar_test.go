package pflagvar_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/luoyongjiee/Jamvm/cmd/pflagvar"
)

func ExampleRegisterFlagsInStruct() {
	eg := struct {
		A int    `flag:"int-flag,-1,intVar flag"`
		B string `flag:"string-flag,'some,value,with,a,comma',stringVar flag"`
		O int
	}{
		O: 23,
	}
	flagSet := pflag.NewFlagSet("eg", pflag.ContinueOnError)
	if err := pflagvar.RegisterFlagsInStruct(flagSet, "flag", &eg); err != nil {
		panic(err)
	}
	fmt.Println(eg.A)
	fmt.Println(eg.B)
	flagSet.Parse([]string{"--int-flag=42"})
	fmt.Println(eg.A)
	fmt.Println(eg.B)
	// Output:
	// -1
	// some,value,with,a,comma
	// 42
	// some,value,with,a,comma
}

func TestShorthand(t *testing.T) {
	cfg := struct {
		Threads int           `flag:"threads;t,8,number of worker threads"`
		Verbose bool          `flag:"verbose;v,,enable verbose output"`
		Warmup  time.Duration `flag:"warmup,1s,warmup time"`
	}{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := pflagvar.RegisterFlagsInStruct(fs, "flag", &cfg); err != nil {
		t.Fatalf("RegisterFlagsInStruct: %v", err)
	}
	if cfg.Threads != 8 || cfg.Verbose || cfg.Warmup != time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if f := fs.Lookup("threads"); f == nil || f.Shorthand != "t" {
		t.Errorf("threads flag missing or missing its shorthand: %+v", f)
	}
	if err := fs.Parse([]string{"-t", "3", "-v"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Threads != 3 || !cfg.Verbose {
		t.Errorf("shorthand parse not applied: %+v", cfg)
	}
	if cfg.Warmup != time.Second {
		t.Errorf("untouched flag lost its default: %+v", cfg)
	}
}

func TestShorthandErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		in   interface{}
		msg  string
	}{
		{"long shorthand", &struct {
			X int `flag:"x;xx,0,an int"`
		}{}, "not a single letter"},
		{"unsupported type", &struct {
			X []string `flag:"x,,a slice"`
		}{}, "unsupported field type"},
		{"not a pointer", struct{}{}, "not a pointer to a struct"},
	} {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		err := pflagvar.RegisterFlagsInStruct(fs, "flag", test.in)
		if err == nil || !strings.Contains(err.Error(), test.msg) {
			t.Errorf("%s: got error %v, want one containing %q", test.name, err, test.msg)
		}
	}
}
