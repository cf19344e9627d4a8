package render

import (
	"encoding/base64"
	"io/fs"
	"mime"
	"path"
	"regexp"
	"strings"

	"github.com/ginjaninja78/etc-mailer/internal/types"
)

var cidReference = regexp.MustCompile(`cid:([A-Za-z0-9._-]+)`)

// imageExts are tried in order when resolving a cid against the template
// folder.
var imageExts = []string{".jpeg", ".jpg", ".png", ".gif"}

// Preview renders template name for rec with every "cid:" image replaced
// by a data URL, so the HTML displays in a browser without the mail
// attachments.
func (e *Engine) Preview(name string, rec *types.CustomerRecord) (*Result, error) {
	result, err := e.Render(name, rec)
	if err != nil {
		return nil, err
	}

	for _, match := range cidReference.FindAllStringSubmatch(result.HTML, -1) {
		cid := match[1]
		file, data, ok := e.findImage(cid)
		if !ok {
			continue
		}
		result.HTML = InlineCID(result.HTML, cid, ContentType(file), data)
	}
	return result, nil
}

func (e *Engine) findImage(cid string) (string, []byte, bool) {
	candidates := []string{cid}
	if path.Ext(cid) == "" {
		candidates = candidates[:0]
		for _, ext := range imageExts {
			candidates = append(candidates, cid+ext)
		}
	}
	for _, name := range candidates {
		if data, err := fs.ReadFile(e.fs, name); err == nil {
			return name, data, true
		}
	}
	return "", nil, false
}

// InlineCID replaces every "cid:<cid>" reference in html with a base64
// data URL of data.
func InlineCID(html, cid, contentType string, data []byte) string {
	url := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
	return strings.ReplaceAll(html, "cid:"+cid, url)
}

// ContentType guesses the MIME type of a file from its extension.
func ContentType(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}
