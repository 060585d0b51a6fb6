package pathresolve

import "testing"

func TestResolveTraversal(t *testing.T) {
	if _, _, err := Resolve("..", "/a/b"); err == nil {
		t.Error("Resolve(\"..\", \"/a/b\") should fail")
	}
	if _, _, err := Resolve("/c/..", "/a/b"); err == nil {
		t.Error("Resolve(\"/c/..\", \"/a/b\") should fail")
	}
}

func TestResolveWithinAnchor(t *testing.T) {
	got, isVirtual, err := Resolve("/a/b/x/../y", "/a/b")
	if err != nil {
		t.Fatal(err)
	}
	if isVirtual {
		t.Error("expected local path")
	}
	if got != "/a/b/y" {
		t.Errorf("got %q, want /a/b/y", got)
	}
}

func TestResolveVirtual(t *testing.T) {
	got, isVirtual, err := Resolve("//foo/bar", "/a/b")
	if err != nil {
		t.Fatal(err)
	}
	if !isVirtual {
		t.Error("expected virtual path")
	}
	if got != "/foo/bar" {
		t.Errorf("got %q, want /foo/bar", got)
	}
}

func TestResolveUNCRejected(t *testing.T) {
	if _, _, err := Resolve(`\\server\share`, "/a/b"); err == nil {
		t.Error("expected UNC path to be rejected")
	}
}

func TestResolveBackslashNormalized(t *testing.T) {
	got, _, err := Resolve(`a\b\c`, "/x")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a/b/c" {
		t.Errorf("got %q, want a/b/c", got)
	}
}

func TestValidateEntryPathRejectsReservedNames(t *testing.T) {
	for _, name := range []string{"CON", "con", "NUL", "com1", "LPT9", "PRN"} {
		if err := ValidateEntryPath(name); err == nil {
			t.Errorf("ValidateEntryPath(%q) should be rejected", name)
		}
	}
}

func TestValidateEntryPathCaseSensitiveOtherwise(t *testing.T) {
	if err := ValidateEntryPath("Readme.txt"); err != nil {
		t.Errorf("unexpected rejection: %v", err)
	}
	if err := ValidateEntryPath("a/b/readme.txt"); err != nil {
		t.Errorf("unexpected rejection: %v", err)
	}
}

func TestValidateEntryPathRejectsDotsAndEmpty(t *testing.T) {
	for _, p := range []string{"a/../b", "a//b", "/a", "", "a/./b"} {
		if err := ValidateEntryPath(p); err == nil {
			t.Errorf("ValidateEntryPath(%q) should be rejected", p)
		}
	}
}

func TestParentAndBaseOf(t *testing.T) {
	if got := ParentOf("a/b/c.txt"); got != "a/b" {
		t.Errorf("ParentOf = %q, want a/b", got)
	}
	if got := ParentOf("top.txt"); got != "" {
		t.Errorf("ParentOf(top-level) = %q, want \"\"", got)
	}
	if got := BaseOf("a/b/c.txt"); got != "c.txt" {
		t.Errorf("BaseOf = %q, want c.txt", got)
	}
}
