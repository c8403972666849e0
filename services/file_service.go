package services

import (
	"bytes"
	"chat-relay/domain/chat"
	"chat-relay/domain/mimetypes"
	"chat-relay/errors"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is how many leading bytes are used to detect the file type.
const sniffLen = 3072

type IFileService interface {
	Save(ctx context.Context, userID chat.UserID, name string, content io.Reader) (chat.FileBody, error)
	Locate(url string) (string, error)
}

// FileService stores message attachments on disk under <root>/files/<unix ms>/<name>.
// The returned FileBody.URL is relative to the files route.
type FileService struct {
	log     *slog.Logger
	root    string
	maxSize int64
	now     func() time.Time
}

func NewFileService(log *slog.Logger, root string, maxSize int64) *FileService {
	return &FileService{log: log, root: root, maxSize: maxSize, now: time.Now}
}

// Save checks the real type of the content (jpeg, png or pdf) and its size before
// keeping it. A refused file leaves nothing on disk.
func (s *FileService) Save(ctx context.Context, userID chat.UserID, name string, content io.Reader) (chat.FileBody, error) {
	name = cleanFileName(name)
	if name == "" {
		return chat.FileBody{}, fmt.Errorf("%w: file name is required", errors.ErrValidation)
	}

	limited := io.LimitReader(content, s.maxSize+1)
	sniff := make([]byte, sniffLen)
	n, err := io.ReadFull(limited, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return chat.FileBody{}, fmt.Errorf("%w: %v", errors.ErrTransientIO, err)
	}
	sniff = sniff[:n]
	if n == 0 {
		return chat.FileBody{}, fmt.Errorf("%w: file is empty", errors.ErrValidation)
	}

	detected := mimetype.Detect(sniff).String()
	if _, ok := mimetypes.IsUploadable(detected); !ok {
		s.log.Debug("Upload refused", "user_id", userID, "mime_type", detected)
		return chat.FileBody{}, fmt.Errorf("%w: %s", errors.ErrUnsupportedFile, detected)
	}

	folder := strconv.FormatInt(s.now().UnixMilli(), 10)
	dir := filepath.Join(s.root, "files", folder)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return chat.FileBody{}, fmt.Errorf("%w: %v", errors.ErrTransientIO, err)
	}

	target := filepath.Join(dir, name)
	size, err := s.write(ctx, target, io.MultiReader(bytes.NewReader(sniff), limited))
	if err != nil {
		_ = os.Remove(target)
		_ = os.Remove(dir) // only succeeds when empty
		return chat.FileBody{}, err
	}

	s.log.Info("File stored", "user_id", userID, "name", name, "size", size, "mime_type", detected)
	return chat.FileBody{URL: path.Join("files", folder, name), Name: name, Size: size}, nil
}

func (s *FileService) write(ctx context.Context, target string, content io.Reader) (int64, error) {
	f, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrTransientIO, err)
	}
	defer f.Close()

	size, err := io.Copy(f, content)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrTransientIO, err)
	}
	if size > s.maxSize {
		return 0, fmt.Errorf("%w: more than %d bytes", errors.ErrFileTooLarge, s.maxSize)
	}
	if err = ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrTransientIO, err)
	}
	return size, f.Sync()
}

// Locate returns the disk path of a stored file from its relative url.
// Anything else than a regular file below <root>/files is errors.ErrNotFound.
func (s *FileService) Locate(url string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(url, "\\", "/"))
	if !strings.HasPrefix(clean, "/files/") {
		return "", fmt.Errorf("%w: %s", errors.ErrNotFound, url)
	}
	target := filepath.Join(s.root, filepath.FromSlash(clean))
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", errors.ErrNotFound, url)
	}
	return target, nil
}

// cleanFileName keeps the base name only, so a crafted name cannot escape the upload directory.
func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
