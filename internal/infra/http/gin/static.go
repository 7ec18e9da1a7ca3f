package ginserver

import (
	"net/http"
	"os"
	"path/filepath"

	gin "github.com/gin-gonic/gin"
)

var pageRoutes = []string{"chats", "login", "register", "sell", "help", "profile", "market-prices", "reset-password"}

// registerStatic serves the browser client. Pages missing from dir are
// skipped so an API-only deployment needs no client files.
func registerStatic(router *gin.Engine, dir, uploadsDir string) {
	if uploadsDir != "" {
		router.Static("/uploads", uploadsDir)
	}
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	index := filepath.Join(dir, "index.html")
	if fileExists(index) {
		router.GET("/", func(c *gin.Context) { c.File(index) })
	}
	for _, name := range pageRoutes {
		page := filepath.Join(dir, name+".html")
		if !fileExists(page) {
			continue
		}
		router.GET("/"+name, func(c *gin.Context) { c.File(page) })
	}
	for _, sub := range []string{"css", "js", "images"} {
		if path := filepath.Join(dir, sub); fileExists(path) {
			router.StaticFS("/"+sub, http.Dir(path))
		}
	}
	if sw := filepath.Join(dir, "firebase-messaging-sw.js"); fileExists(sw) {
		router.StaticFile("/firebase-messaging-sw.js", sw)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
