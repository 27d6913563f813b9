package documents

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

// maxChunkRunes bounds a plain-text chunk so search snippets stay focused.
const maxChunkRunes = 2000

// extractText pages a text file on form feeds when it has them. Otherwise
// paragraphs are packed into chunks of at most maxChunkRunes, and chunks
// carry no page anchor.
func extractText(path string) ([]model.DocumentPage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "documents: read %s", path)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	if strings.Contains(text, "\f") {
		var pages []model.DocumentPage
		for i, p := range strings.Split(text, "\f") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			n := i + 1
			pages = append(pages, model.DocumentPage{Page: &n, Content: p})
		}
		return pages, nil
	}

	var pages []model.DocumentPage
	for _, c := range packParagraphs(text, maxChunkRunes) {
		pages = append(pages, model.DocumentPage{Content: c})
	}
	return pages, nil
}

func packParagraphs(text string, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
		size   int
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			size = 0
		}
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := len([]rune(para))
		if size > 0 && size+n+2 > limit {
			flush()
		}
		if size > 0 {
			cur.WriteString("\n\n")
			size += 2
		}
		cur.WriteString(para)
		size += n
	}
	flush()
	return chunks
}
