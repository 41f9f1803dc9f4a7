package middleware

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Static returns an http.Handler serving files from directory, used for
// scraped newsletter images. Paths escaping the directory are rejected
// and directories are not listed.
//
// Example usage:
//
//	mux := http.NewServeMux()
//	mux.Handle("GET /images/", http.StripPrefix("/images", middleware.Static("data/images")))
func Static(directory string) http.Handler {
	absDir, absErr := filepath.Abs(directory)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if absErr != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		name := filepath.Join(absDir, filepath.Clean("/"+r.URL.Path))
		if name != absDir && !strings.HasPrefix(name, absDir+string(filepath.Separator)) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		info, err := os.Stat(name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if info.IsDir() {
			http.Error(w, "Directory listing not allowed", http.StatusForbidden)
			return
		}

		setContentType(w, name)
		http.ServeFile(w, r, name)
	})
}

// setContentType sets the Content-Type header based on the file extension.
func setContentType(w http.ResponseWriter, filePath string) {
	if ext := filepath.Ext(filePath); ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
	}
}
