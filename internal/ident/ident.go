// Package ident parses and canonicalizes the identifiers that name targets
// and products across the project: absolute references ("//pkg/path:name"),
// same-package references (":name"), the abbreviated path form
// ("//pkg/path/name"), and product references ("//pkg/path:name#out/path").
//
// Resolution here is purely syntactic. Whether the named package or target
// actually exists is a question for evaluation, not parsing.
package ident

import (
	"fmt"
	"strings"
)

// ID is the canonical (package, target, product) tuple. Two textual forms
// that resolve to the same tuple are considered the same identifier.
type ID struct {
	Package string // project-relative slash-delimited path; "" for the project root package
	Target  string
	Product string // "" if this identifier does not name a product
}

// SyntaxError reports a malformed identifier reference.
type SyntaxError struct {
	Ref    string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Ref, e.Reason)
}

// Parse resolves a textual reference against the given package context,
// returning the canonical identifier or a *SyntaxError.
//
// pkgContext is used to resolve same-package (":name") references; it is
// ignored for absolute references.
func Parse(ref string, pkgContext string) (ID, error) {
	main, product, hasProduct := cutProduct(ref)

	switch {
	case strings.HasPrefix(main, "//"):
		pkg, target, shorthand, err := parseAbsolute(main)
		if err != nil {
			return ID{}, &SyntaxError{Ref: ref, Reason: err.Error()}
		}
		if hasProduct && shorthand {
			return ID{}, &SyntaxError{Ref: ref, Reason: "product reference requires colon form, not the abbreviated path form"}
		}
		return ID{Package: pkg, Target: target, Product: product}, nil

	case strings.HasPrefix(main, ":"):
		if pkgContext == "" && main == ":" {
			return ID{}, &SyntaxError{Ref: ref, Reason: "same-package reference has no target name"}
		}
		target := main[1:]
		if target == "" {
			return ID{}, &SyntaxError{Ref: ref, Reason: "same-package reference has no target name"}
		}
		return ID{Package: pkgContext, Target: target, Product: product}, nil

	default:
		return ID{}, &SyntaxError{Ref: ref, Reason: "bare relative references are not permitted for dependency edges"}
	}
}

// parseAbsolute parses the portion of an absolute reference after stripping
// any "#product" suffix. It returns whether the trailing-segment shorthand
// was used, since that form is incompatible with a product suffix.
func parseAbsolute(main string) (pkg, target string, shorthand bool, err error) {
	rest := strings.TrimPrefix(main, "//")

	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		pkg = rest[:idx]
		target = rest[idx+1:]
		if target == "" {
			return "", "", false, fmt.Errorf("colon form has no target name")
		}
		return pkg, target, false, nil
	}

	// No colon: the abbreviated path form. The trailing path component is
	// both the last package directory and the target name.
	if rest == "" {
		return "", "", false, fmt.Errorf("empty absolute reference")
	}
	lastSlash := strings.LastIndexByte(rest, '/')
	if lastSlash < 0 {
		// "//name" with no path component: package is root, target is name.
		return "", rest, true, nil
	}
	pkg = rest[:lastSlash]
	target = rest[lastSlash+1:]
	if target == "" {
		return "", "", false, fmt.Errorf("abbreviated reference has no trailing target name")
	}
	return pkg, target, true, nil
}

// cutProduct splits a reference on the first '#', if any.
func cutProduct(ref string) (main, product string, has bool) {
	if idx := strings.IndexByte(ref, '#'); idx >= 0 {
		return ref[:idx], ref[idx+1:], true
	}
	return ref, "", false
}

// String renders the canonical colon-form text of the identifier. It is
// always in absolute form regardless of how the identifier was parsed, so
// Parse(id.String(), anyContext) reproduces id.
func (id ID) String() string {
	var sb strings.Builder
	sb.WriteString("//")
	sb.WriteString(id.Package)
	sb.WriteByte(':')
	sb.WriteString(id.Target)
	if id.Product != "" {
		sb.WriteByte('#')
		sb.WriteString(id.Product)
	}
	return sb.String()
}

// TargetID returns the identifier for the same target with no product
// reference, useful for keying dependency edges that ignore any product
// suffix carried incidentally.
func (id ID) TargetID() ID {
	return ID{Package: id.Package, Target: id.Target}
}

// Equal reports whether two identifiers name the same (package, target,
// product) tuple.
func (id ID) Equal(other ID) bool {
	return id.Package == other.Package && id.Target == other.Target && id.Product == other.Product
}
