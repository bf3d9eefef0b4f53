package ident

import "testing"

func TestParseAbsolute(t *testing.T) {
	id, err := Parse("//greet:hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ID{Package: "greet", Target: "hello"}
	if id != want {
		t.Fatalf("got %+v, want %+v", id, want)
	}
}

func TestParseSamePackage(t *testing.T) {
	id, err := Parse(":hello", "greet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ID{Package: "greet", Target: "hello"}
	if id != want {
		t.Fatalf("got %+v, want %+v", id, want)
	}
}

func TestParseShorthand(t *testing.T) {
	id, err := Parse("//lib/foo/foo", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ID{Package: "lib/foo", Target: "foo"}
	if id != want {
		t.Fatalf("got %+v, want %+v", id, want)
	}
}

func TestParseShorthandRoot(t *testing.T) {
	id, err := Parse("//hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ID{Package: "", Target: "hello"}
	if id != want {
		t.Fatalf("got %+v, want %+v", id, want)
	}
}

func TestParseProduct(t *testing.T) {
	id, err := Parse("//gen:codegen#tables.c", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ID{Package: "gen", Target: "codegen", Product: "tables.c"}
	if id != want {
		t.Fatalf("got %+v, want %+v", id, want)
	}
}

func TestParseProductRequiresColonForm(t *testing.T) {
	_, err := Parse("//gen/codegen#tables.c", "")
	if err == nil {
		t.Fatal("expected an error for product reference on shorthand form")
	}
	if _, ok := err.(*SyntaxError); !ok {
		t.Fatalf("expected *SyntaxError, got %T", err)
	}
}

func TestParseBareRelativeRejected(t *testing.T) {
	_, err := Parse("hello", "greet")
	if err == nil {
		t.Fatal("expected an error for a bare relative reference")
	}
}

func TestParseSamePackageNoContext(t *testing.T) {
	_, err := Parse(":hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"//greet:hello",
		"//lib/foo:bar",
		"//:root",
		"//gen:codegen#tables/out.c",
	}
	for _, c := range cases {
		id, err := Parse(c, "")
		if err != nil {
			t.Fatalf("Parse(%q): %v", c, err)
		}
		reparsed, err := Parse(id.String(), "")
		if err != nil {
			t.Fatalf("Parse(String(%q)): %v", c, err)
		}
		if !id.Equal(reparsed) {
			t.Fatalf("round trip mismatch: %+v vs %+v", id, reparsed)
		}
	}
}

func TestEmptyReference(t *testing.T) {
	if _, err := Parse("", ""); err == nil {
		t.Fatal("expected error for empty reference")
	}
}
