package models

import (
	"testing"
	"time"
)

func TestProblemID(t *testing.T) {
	tests := []struct {
		page  string
		guid  string
		index int
		want  string
	}{
		{"1", "AB12CD", 0, "1_0_AB12CD"},
		{InitPage, "FF00", 3, "init_3_FF00"},
		{"2", "", 1, "2_1"},
	}
	for _, tt := range tests {
		if got := ProblemID(tt.page, tt.guid, tt.index); got != tt.want {
			t.Errorf("ProblemID(%q, %q, %d) = %q, want %q", tt.page, tt.guid, tt.index, got, tt.want)
		}
	}
}

func TestProblemValidate(t *testing.T) {
	valid := func() *Problem {
		return &Problem{
			ProblemID:     "1_0_AB",
			ProjectID:     "PROJ1",
			Page:          "1",
			Text:          "текст задачи",
			SchemaVersion: SchemaVersion,
			CreatedAt:     time.Now(),
		}
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("valid problem rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Problem)
	}{
		{"missing id", func(p *Problem) { p.ProblemID = "" }},
		{"missing project", func(p *Problem) { p.ProjectID = "" }},
		{"blank text", func(p *Problem) { p.Text = "   \n " }},
		{"missing schema version", func(p *Problem) { p.SchemaVersion = "" }},
		{"image without url", func(p *Problem) { p.Images = []Image{{ID: "x"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			if err := p.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestImageDownloaded(t *testing.T) {
	if (Image{URL: "http://x/a.png"}).Downloaded() {
		t.Error("image without local path reported downloaded")
	}
	if !(Image{URL: "http://x/a.png", LocalPath: "/tmp/a.png"}).Downloaded() {
		t.Error("image with local path reported missing")
	}
}
