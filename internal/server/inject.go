package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/sitepipe/internal/logging"
)

var scriptTag = []byte(`<script src="` + LiveReloadScript + `"></script>`)

// staticHandler serves files from the root directory. HTML documents get the
// live-reload script injected before </body>; everything else goes through
// http.FileServer untouched.
type staticHandler struct {
	root   func() string
	inject bool
	logger logging.Logger
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	root := h.root()
	fileServer := http.FileServer(http.Dir(root))

	if !h.inject || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		fileServer.ServeHTTP(w, r)
		return
	}

	name, ok := htmlTarget(root, r.URL.Path)
	if !ok {
		fileServer.ServeHTTP(w, r)
		return
	}

	data, err := os.ReadFile(name)
	if err != nil {
		fileServer.ServeHTTP(w, r)
		return
	}

	out, err := InjectScript(data)
	if err != nil {
		h.logger.Warn(context.Background(), err, "Script injection failed", "path", r.URL.Path)
		out = data
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(out)
}

// htmlTarget resolves a request path to an HTML file under root. Directory
// requests ending in "/" resolve to their index.html.
func htmlTarget(root, urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	if strings.HasSuffix(urlPath, "/") {
		clean = path.Join(clean, "index.html")
	}

	ext := strings.ToLower(path.Ext(clean))
	if ext != ".html" && ext != ".htm" {
		return "", false
	}

	name := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	info, err := os.Stat(name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}

	// http.FileServer redirects /index.html to ./; keep that behavior.
	if strings.HasSuffix(clean, "/index.html") && !strings.HasSuffix(urlPath, "/") {
		return "", false
	}

	return name, true
}

// InjectScript inserts the live-reload script tag before the closing body
// tag of an HTML document, or appends it when there is none. The rest of
// the document is copied byte for byte.
func InjectScript(doc []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(doc) + len(scriptTag))

	z := html.NewTokenizer(bytes.NewReader(doc))
	injected := false

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			break
		}

		if !injected && tt == html.EndTagToken {
			name, _ := z.TagName()
			if string(name) == "body" {
				buf.Write(scriptTag)
				injected = true
			}
		}

		buf.Write(z.Raw())
	}

	if !injected {
		buf.Write(scriptTag)
	}

	return buf.Bytes(), nil
}
