package contents

import (
	"strings"
	"testing"
)

const fixture = "usr/bin/vim	editors/vim\nusr/bin/vimdiff	editors/vim,editors/vim-tiny\netc/vimrc	editors/vim\n"

func TestParseAndFind(t *testing.T) {
	idx, err := Parse(strings.NewReader(fixture))
	if err != nil {
		t.Fatal(err)
	}
	matches := idx.Find("usr/bin/vim", false)
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2", len(matches))
	}
	if matches[0].Path != "usr/bin/vim" || matches[0].Packages[0] != "editors/vim" {
		t.Errorf("matches[0] = %+v", matches[0])
	}
}

func TestFindFirstOnly(t *testing.T) {
	idx, err := Parse(strings.NewReader(fixture))
	if err != nil {
		t.Fatal(err)
	}
	matches := idx.Find("vim", true)
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
}

func TestFindNoMatch(t *testing.T) {
	idx, err := Parse(strings.NewReader(fixture))
	if err != nil {
		t.Fatal(err)
	}
	if matches := idx.Find("does/not/exist", false); matches != nil {
		t.Errorf("expected nil for no matches, got %v", matches)
	}
}
