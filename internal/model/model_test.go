package model_test

import (
	"reflect"
	"testing"

	"github.com/kvistgaard/evalbench/internal/model"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		id       string
		path     string
		revision string
	}{
		{"models/sentiment", "models/sentiment", "main"},
		{"models/sentiment@v1.0.0", "models/sentiment", "v1.0.0"},
		{"models/sentiment@abc123", "models/sentiment", "abc123"},
		{"@leading-at", "@leading-at", "main"},
	}
	for _, tt := range tests {
		got := model.ParseRef(tt.id)
		if got.Path != tt.path || got.Revision != tt.revision {
			t.Errorf("ParseRef(%q) = %+v, want {%s %s}", tt.id, got, tt.path, tt.revision)
		}
	}
}

func TestRefString(t *testing.T) {
	if got := model.ParseRef("m@v2").String(); got != "m@v2" {
		t.Errorf("got %q", got)
	}
	if got := model.ParseRef("m").String(); got != "m" {
		t.Errorf("got %q", got)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Great movie!", []string{"great", "movie", "!"}},
		{"  spaced   out  ", []string{"spaced", "out"}},
		{"it's fine", []string{"it", "'", "s", "fine"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := model.Split(tt.text); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Split(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
