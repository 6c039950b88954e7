package upload

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// DefaultMaxBytes 上传文件大小上限
const DefaultMaxBytes = 20 << 20

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("upload exceeds size limit")
	ErrInvalidText     = errors.New("upload is not valid UTF-8 text")
)

type Options struct {
	// DecryptKey .enc 文件的密码
	DecryptKey string
	// MaxBytes 0 表示使用 DefaultMaxBytes
	MaxBytes int64
}

func (o Options) maxBytes() int64 {
	if o.MaxBytes > 0 {
		return o.MaxBytes
	}
	return DefaultMaxBytes
}

// IsText 按扩展名判断是否为纯文本导出，没有扩展名也按文本处理
func IsText(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", "":
		return true
	}
	return false
}

// Decode 按扩展名提取文本：.txt .pdf .html/.htm .enc
func Decode(name string, data []byte, opts Options) (string, error) {
	if int64(len(data)) > opts.maxBytes() {
		return "", fmt.Errorf("%s: %w", name, ErrTooLarge)
	}

	if IsText(name) {
		return decodeText(data)
	}
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".pdf":
		return PDFText(data)
	case ".html", ".htm":
		return HTMLText(bytes.NewReader(data))
	case ".enc":
		plain, err := Decrypt(data, opts.DecryptKey)
		if err != nil {
			return "", err
		}
		return decodeText(plain)
	default:
		return "", fmt.Errorf("%s: %w", ext, ErrUnsupportedType)
	}
}

// DecodeFile 读取本地文件后调用 Decode
func DecodeFile(path string, opts Options) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > opts.maxBytes() {
		return "", fmt.Errorf("%s: %w", path, ErrTooLarge)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return Decode(path, data, opts)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextReader 跳过开头的 UTF-8 BOM，用于按行流式读取；不做 UTF-8 校验
func TextReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", ErrInvalidText
	}
	return string(data), nil
}

// PDFText 按页顺序拼接文本，页与页之间不加分隔
func PDFText(data []byte) (text string, err error) {
	// 损坏的 PDF 可能让解析库 panic
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		b.WriteString(s)
	}
	return b.String(), nil
}
