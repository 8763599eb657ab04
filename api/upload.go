package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// FileStore persists uploaded files under a per-workspace directory.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Save stores the contents of r under a fresh name, keeping only the
// original extension, and returns the file's URL path.
func (f *FileStore) Save(wsID int64, filename string, r io.Reader) (string, error) {
	name := uuid.NewString() + filepath.Ext(filename)
	dir := filepath.Join(f.baseDir, strconv.FormatInt(wsID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("/%d/%s", wsID, name), nil
}

func upload(files *FileStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := claimsFrom(c)
		form, err := c.MultipartForm()
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorOutput{Error: "invalid multipart body"})
		}
		urls := []string{}
		for _, headers := range form.File {
			for _, fh := range headers {
				if fh.Filename == "" {
					continue
				}
				src, err := fh.Open()
				if err != nil {
					c.Logger().Error(err)
					return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
				}
				url, err := files.Save(claims.WsID, fh.Filename, src)
				src.Close()
				if err != nil {
					c.Logger().Error(err)
					return c.JSON(http.StatusInternalServerError, errorOutput{Error: "system error"})
				}
				urls = append(urls, url)
			}
		}
		return c.JSON(http.StatusCreated, urls)
	}
}
