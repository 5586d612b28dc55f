package models

import "testing"

func validScrapeConfig() ScrapeConfig {
	return ScrapeConfig{
		BaseURL:                "https://ege.fipi.ru/bank/questions.php",
		MaxConcurrentRenderers: 2,
		MaxRequestsPerSec:      1,
		MaxEmptyPages:          2,
		FetchTimeoutSec:        30,
		RenderTimeoutSec:       60,
	}
}

func TestScrapeConfigValidate(t *testing.T) {
	cfg := validScrapeConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ScrapeConfig)
	}{
		{"empty base url", func(c *ScrapeConfig) { c.BaseURL = "" }},
		{"ftp scheme", func(c *ScrapeConfig) { c.BaseURL = "ftp://x/y" }},
		{"zero renderers", func(c *ScrapeConfig) { c.MaxConcurrentRenderers = 0 }},
		{"zero rate", func(c *ScrapeConfig) { c.MaxRequestsPerSec = 0 }},
		{"zero empty budget", func(c *ScrapeConfig) { c.MaxEmptyPages = 0 }},
		{"zero timeout", func(c *ScrapeConfig) { c.FetchTimeoutSec = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validScrapeConfig()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"https://ege.fipi.ru/bank/", true},
		{"http://localhost:8080/q", true},
		{"", false},
		{"not a url", false},
		{"file:///etc/passwd", false},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateURL(%q) err=%v, want ok=%v", tt.url, err, tt.ok)
		}
	}
}

func TestRunSummaryExitCode(t *testing.T) {
	s := &RunSummary{}
	s.Record(PageOutcome{Page: "init", ProblemsSaved: 5})
	if s.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0", s.ExitCode())
	}
	s.Record(PageOutcome{Page: "1", Failed: true, Error: "fetch failed"})
	if s.ExitCode() != 1 {
		t.Errorf("ExitCode = %d, want 1 after a failed page", s.ExitCode())
	}
	if s.PagesProcessed != 2 || s.ProblemsSaved != 5 || s.FailedPages != 1 {
		t.Errorf("summary = %+v", s)
	}
}
