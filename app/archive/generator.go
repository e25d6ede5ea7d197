package archive

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/lysyi3m/scripta/app/story"
)

// Entry is one closed story with its contributions, in narrative order.
type Entry struct {
	Story         story.Story
	Contributions []story.Contribution
}

type Generator struct {
	baseURL string
	version string
	loc     *time.Location
}

func NewGenerator(baseURL, version string, loc *time.Location) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		loc:     loc,
	}
}

// Run renders entries (newest first) as an RSS 2.0 document.
func (g *Generator) Run(entries []Entry) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", "Scripta: l'archivio dei racconti", 4)
	g.writeElement(&buf, "link", g.baseURL+"/archive", 4)
	g.writeElement(&buf, "description", "Un racconto collettivo al giorno, scritto a più mani.", 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(g.baseURL+"/archive.xml")))

	lastBuildDate := time.Now().In(g.loc)
	if len(entries) > 0 {
		lastBuildDate = g.published(entries[0].Story)
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Scripta/%s", g.version), 4)
	g.writeElement(&buf, "language", "it", 4)

	for _, entry := range entries {
		g.writeItem(&buf, entry)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, entry Entry) {
	s := entry.Story
	link := fmt.Sprintf("%s/stories/%s", g.baseURL, s.Date)

	buf.WriteString("    <item>\n")

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(link)))
	xml.EscapeText(buf, []byte(link))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", s.Title, 6)
	g.writeElement(buf, "link", link, 6)

	fullText := story.FullText(s.Incipit, entry.Contributions)
	g.writeElement(buf, "description", cmp.Or(s.Summary, fullText, "Nessun contributo."), 6)
	g.writeElement(buf, "content:encoded", g.content(s, entry.Contributions), 6)
	g.writeElement(buf, "pubDate", g.published(s).Format(time.RFC1123Z), 6)
	g.writeElement(buf, "category", s.Genre, 6)

	for _, author := range authors(entry.Contributions) {
		g.writeElement(buf, "dc:creator", author, 6)
	}

	if s.CoverImageURL != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"%s\" />\n",
			html.EscapeString(s.CoverImageURL),
			html.EscapeString(imageType(s.CoverImageURL))))
	}

	buf.WriteString("    </item>\n")
}

// content renders the story as HTML paragraphs, one per contribution.
func (g *Generator) content(s story.Story, contributions []story.Contribution) string {
	var b strings.Builder
	b.WriteString("<p><em>")
	b.WriteString(html.EscapeString(s.Incipit))
	b.WriteString("</em></p>")
	for _, c := range contributions {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(c.Text))
		b.WriteString(" <small>(")
		b.WriteString(html.EscapeString(c.AuthorName))
		b.WriteString(")</small></p>")
	}
	return b.String()
}

func (g *Generator) published(s story.Story) time.Time {
	if s.ClosedAt != nil {
		return s.ClosedAt.In(g.loc)
	}
	return s.CreatedAt.In(g.loc)
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// authors lists distinct human authors in order of first contribution.
func authors(contributions []story.Contribution) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range contributions {
		if c.IsGhostwriter || c.AuthorName == "" || seen[c.AuthorName] {
			continue
		}
		seen[c.AuthorName] = true
		out = append(out, c.AuthorName)
	}
	return out
}

func imageType(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if t := mime.TypeByExtension(path.Ext(u.Path)); strings.HasPrefix(t, "image/") {
			return t
		}
	}
	return "image/jpeg"
}
