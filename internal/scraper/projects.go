package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/Clean1ines/iXe/internal/utils"
)

// DiscoverProjects crawls the subject index page and maps subject names
// to project ids. The index is a static server-rendered page, so a
// plain crawler is enough; no browser involved.
func DiscoverProjects(subjectsURL, userAgent string, insecureTLS bool) (map[string]string, error) {
	projects := make(map[string]string)

	opts := []colly.CollectorOption{
		colly.UserAgent(userAgent),
		colly.MaxDepth(1),
	}
	c := colly.NewCollector(opts...)
	if insecureTLS {
		c.WithTransport(insecureTransport())
	}

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		proj := projectIDFromHref(href)
		if proj == "" {
			return
		}
		name := strings.TrimSpace(e.Text)
		if name == "" {
			return
		}
		if _, dup := projects[name]; !dup {
			projects[name] = proj
		}
	})

	var visitErr error
	c.OnError(func(_ *colly.Response, err error) {
		visitErr = err
	})

	if err := c.Visit(subjectsURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", subjectsURL, err)
	}
	c.Wait()
	if visitErr != nil {
		return nil, fmt.Errorf("crawl %s: %w", subjectsURL, visitErr)
	}

	utils.Infof("discovered %d projects at %s", len(projects), subjectsURL)
	return projects, nil
}

// ResolveProject finds the project id for a subject name, matching
// case-insensitively and by substring so "математика" finds the
// profile-level variant too.
func ResolveProject(projects map[string]string, subject string) (string, error) {
	if id, ok := projects[subject]; ok {
		return id, nil
	}
	needle := strings.ToLower(subject)
	for name, id := range projects {
		if strings.Contains(strings.ToLower(name), needle) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNoProject, subject)
}

// projectIDFromHref extracts the proj parameter from an index link.
func projectIDFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("proj")
}
